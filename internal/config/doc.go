// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves kbchat configuration.
//
// Configuration file locations (in order of precedence):
//   - ~/.kbchat/config.toml
//   - ~/.kbchat/config.json
//   - Built-in defaults
//
// A .env file in the working directory is read before environment overrides
// are applied. Variables already present in the environment win.
//
// Environment variables:
//   - KBCHAT_HOME: overrides the ~/.kbchat directory
//   - KBCHAT_API_URL: overrides api.base_url
//   - KBCHAT_TIMEOUT: overrides api.timeout_secs
//   - KBCHAT_LOG_LEVEL: overrides log.level
//   - KBCHAT_THEME: overrides ui.theme
//   - KBCHAT_CREDENTIAL_KEY: passphrase that seals the credential file
//   - KBCHAT_NO_CACHE: disables the local history cache
package config
