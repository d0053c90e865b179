// Package config loads, validates, and normalizes loom configuration.
//
// Configuration lives in a TOML file (default ~/.config/loom/config.toml).
// Load applies defaults for missing keys, expands ~ in paths, and validates
// the result. Components receive the Config struct explicitly at
// construction; nothing reads ambient global state.
package config
