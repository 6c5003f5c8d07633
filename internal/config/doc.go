// SPDX-License-Identifier: MPL-2.0

// Package config handles modrt configuration using Viper with CUE as the file format.
//
// Configuration is read from the platform config directory (for example
// ~/.config/modrt/config.cue), falling back to ./config.cue, and validated
// against the embedded #Config schema before being merged over the defaults.
// Every key can be overridden from the environment with the MODRT_ prefix,
// dots replaced by underscores (MODRT_STORAGE_DRIVER, MODRT_LOCK_TIMEOUT).
package config
