// Package config loads the flowspec configuration file.
//
// It provides functionality for:
//   - Loading .flowspec.config.json, flowspec.config.json or .flowspecrc
//   - Default configuration values
//   - Merging command line overrides and converting to runner settings
package config
