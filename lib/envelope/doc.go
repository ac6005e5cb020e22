// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the ciphertext format the wallet produces:
// a deterministic CBOR map carrying the content identity, the
// key-server shares of the data-encryption key, and the
// XChaCha20-Poly1305 ciphertext.
//
// Envelopes are raw bytes end to end. Nothing in the format is text
// encoded, so ciphertext can be stored, uploaded and returned without
// any conversion that could corrupt it.
//
// The content key is HKDF-SHA256 over the data-encryption key with
// info "pdw.envelope.v1" || identity. The AEAD's associated data binds
// the format version, the access package, the identity, the
// compression algorithm and the plaintext size, so altering any header
// field makes [Envelope.Open] fail.
//
// [Parse] performs structural sanity checks and returns
// [ErrCorrupted] before any network request is made for a malformed
// envelope.
package envelope
