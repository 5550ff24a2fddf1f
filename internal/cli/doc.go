// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It loads
// the optional configuration file and layers explicit flags on top of it.
package cli
