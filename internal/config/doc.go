// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tabsession.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - SessionConfig: Inactivity thresholds, warning lead time and tick rates
//   - StorageConfig: Shared credential store backend and origin
//   - Duration: time.Duration that reads and writes as "2h", "5m"
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TABSESSION_*)
//   - ~/.tabsession/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	timeout := cfg.Session.InactivityTimeout.Std()
//	dir, _ := cfg.OriginDir()
package config
