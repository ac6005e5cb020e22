// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements "pdw keyserver": key generation for a new
// key server and a status check of the configured servers.
package server
