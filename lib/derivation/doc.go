// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package derivation computes context wallet addresses from a master
// identity and the master's secret salt.
//
// The derivation is a fixed wire contract shared by every client that
// must reproduce the same addresses:
//
//	key     = salt
//	message = "pdw.context-wallet.v1" || 0x00
//	          || master (32 raw bytes)
//	          || uint32_be(len(appID)) || appID (UTF-8)
//	address = HMAC-SHA256(key, message)
//
// The indexed form used by [Registry] replaces the tag with
// "pdw.context-wallet.index.v1" and the app-id field with
// uint64_be(index). Neither form reads a clock or a random source.
//
// One salt exists per master identity, held in a [MasterRecord]. Salts
// are never stored per context.
package derivation
