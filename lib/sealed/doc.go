// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for key
// material: key-server shares wrapped at encryption time and shares
// released to a session's ephemeral key. It wraps filippo.io/age for
// the operations the wallet needs: generate x25519 keypairs, encrypt
// to recipients, and decrypt with a private key.
//
// Ciphertext is raw age binary format end to end. It is never text
// encoded on the way through, so arbitrary bytes survive unchanged.
// Private keys and decrypted plaintext are returned as [secret.Buffer]
// values backed by mmap memory outside the Go heap (locked against
// swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] / [LoadKeypair] -- age x25519 keypairs
//   - [Encrypt] -- encrypt to age public key recipients
//   - [Decrypt] -- decrypt with a secret.Buffer key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
package sealed
