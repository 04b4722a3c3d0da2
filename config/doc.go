// Package config loads bridgectl settings from TOML.
//
// A missing file is not an error: Load returns Default so the CLI works
// without a config. Flags applied after Load override file values.
package config
