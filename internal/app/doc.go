// Package app contains the core application logic. It wires the graph store,
// merger, render bridge and tracker session together from a config.Config,
// and owns the process lifecycle: dialing and redialing the map server and
// serving the local HTTP control surface, decoupled from any specific
// entrypoint like a CLI.
package app
