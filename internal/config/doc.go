// ABOUTME: Package documentation for configuration loading
// ABOUTME: Explains config file locations and expansion behavior

// Package config handles configuration loading for omnichat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from OMNICHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/omnichat/gateway.yaml
//  3. ~/.config/omnichat/gateway.yaml
//
// Values of the form ${VAR_NAME} are replaced with the corresponding
// environment variable, which keeps provider API keys out of the file itself.
package config
