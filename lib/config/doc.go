// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the wallet
// tools.
//
// Configuration is loaded from a single file specified by either the
// PDW_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. [Config.Validate] rejects an in-memory
// blob store in production.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PDW_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Durations (session TTLs, timeouts) use Go duration syntax: "30s",
// "10m".
//
// This package depends on no other wallet packages.
package config
