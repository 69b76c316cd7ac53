// Package config loads queryhub settings from a YAML configuration
// directory and serves them to the engine as an engine.ConfigSource.
//
// The directory layout is:
//
//	providers.yaml    data source definitions
//	credentials.yaml  credential definitions (optional)
//	reports/          one YAML document per report
//
// Loader.Load reads and validates the whole set; Loader.Watch reloads it
// when files change.
package config
