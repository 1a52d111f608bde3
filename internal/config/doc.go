// Package config loads the service configuration from environment
// variables, command-line flags and an optional JSON file, merges the
// sources in priority order, fills defaults and validates the result.
package config
