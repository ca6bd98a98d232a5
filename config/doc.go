// Package config loads settings from defaults, a YAML file, a .env file and
// PLUTO_ prefixed environment variables, and validates the result.
package config
