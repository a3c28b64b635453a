// Package config loads engine configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order of
// precedence (later sources win).
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("genflow.yaml").
//	    WithEnvPrefix("GENFLOW").
//	    Load()
package config
