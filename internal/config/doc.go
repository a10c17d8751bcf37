// SPDX-License-Identifier: MPL-2.0

// Package config handles capkit configuration using Viper with CUE as the file format.
//
// Configuration is loaded from the file given with --config, then from
// $XDG_CONFIG_HOME/capkit/config.cue (~/.config/capkit on Linux,
// ~/Library/Application Support/capkit on macOS, %APPDATA%\capkit on Windows),
// then from ./config.cue. Every key can be overridden from the environment with
// the CAPKIT_ prefix, dots replaced by underscores (CAPKIT_LOG_LEVEL).
//
// Files are validated against the embedded #Config schema (config_schema.cue).
package config
