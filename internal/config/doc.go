// Package config loads the cargorun configuration.
//
// Sources are merged with later ones winning:
//
//	defaults
//	~/.config/cargorun/config.toml   (or the file given with --config)
//	<workspace>/.cargorun.toml
//	CARGORUN_* environment variables
//	command-line flags
//
// The merged map is decoded into Config and validated. A sample file:
//
//	[server]
//	command = "rust-analyzer"
//	wait_quiescent = true
//
//	[task]
//	cargo_runner = "cross"
//
//	[logging]
//	level = "debug"
//	file = "/tmp/cargorun.log"
//
//	[watch]
//	debounce = "500ms"
package config
