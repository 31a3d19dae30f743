// Package config loads host settings from defaults, an optional TOML or
// YAML file and TICKHOST_* environment variables, in that order.
//
// Example TOML:
//
//	period = "33ms"
//	overlap = "coalesce"
//	on_failure = "halt"
//
//	[source]
//	path = "app.wasm"
//	wait = true
//
//	[exports]
//	create = "web_startup"
//	advance = "web_update"
//	poll = "web_poll"
//
// Environment variables use the env tag of each field, for example
// TICKHOST_PERIOD=16ms or TICKHOST_SOURCE_URL=https://example.com/app.wasm.
package config
