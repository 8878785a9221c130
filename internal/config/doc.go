// Package config loads, validates, and normalizes curator configuration.
//
// Configuration lives in a TOML file (default ~/.config/curator/config.toml)
// with repository defaults applied for any omitted key. Paths are expanded
// and made absolute during Load so downstream packages never see "~".
package config
