// Package config loads stepwise configuration.
//
// Configuration comes from three sources, later ones overriding earlier
// ones: built-in defaults, an optional file, and STEPWISE_* environment
// variables. Files are TOML (.toml) or YAML (.yaml, .yml).
//
// Example TOML:
//
//	[history]
//	max_steps = 500
//	strict = true
//
//	[dispatch]
//	queue_size = 1024
//	stall_warning = "2s"
//
//	[logging]
//	level = "debug"
//	format = "json"
package config
