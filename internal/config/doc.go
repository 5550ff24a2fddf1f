// Package config defines the client configuration, its defaults, and the HCL
// loader that reads it from a file.
//
// A configuration file is optional. Every block and attribute may be
// omitted; omitted values keep their defaults. Expressions may reference
// the process environment through the env object:
//
//	render {
//	  kind = "dot"
//	  path = "${env.HOME}/wormhole.dot"
//	}
//
// Command-line flags are applied on top of the loaded values by the cli
// package, after which Validate checks the result.
package config
