// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages short-lived session credentials that prove
// control of an address's signing key to key servers, so a wallet
// signs once per session instead of once per decryption.
//
// A session binds an ephemeral age X25519 key to a subject address.
// The subject signs a [Challenge] naming the session's public
// recipient, its issue time, TTL and the access package; key servers
// verify that [Certificate] and encrypt released key shares to the
// recipient, which only this process can open.
//
// Per subject, a session moves through
//
//	Uninitialized -> Pending -> Active -> Expired
//
// [Store] is the only shared mutable state in the wallet core.
// Concurrent [Store.Create] calls for one subject join the in-flight
// creation, so one challenge is signed and one session becomes
// active. Creation for different subjects proceeds in parallel.
// Expiry is checked lazily on access; [Store.CleanupExpired] evicts
// expired sessions on demand. Session keys live in [secret.Buffer]
// memory and are never persisted.
package session
