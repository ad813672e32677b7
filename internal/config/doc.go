// Package config loads and validates the voiceline configuration file.
//
// Configuration lives in a TOML file (default
// ~/.config/voiceline/config.toml). Load applies repository defaults,
// decodes the file when present, expands paths, and validates the
// result so downstream packages can trust every field.
package config
