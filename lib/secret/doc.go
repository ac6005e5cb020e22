// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for key material: the
// per-master derivation salt, Ed25519 signing seeds, age identities of
// session keys and key servers, envelope data-encryption keys and
// recovered plaintext.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// tries to lock it into physical RAM via mlock, and marks it excluded
// from core dumps via madvise(MADV_DONTDUMP). On Close the memory is
// zeroed and unmapped. When RLIMIT_MEMLOCK is exhausted the buffer is
// still allocated outside the heap and excluded from core dumps, but
// [Buffer.Locked] reports false.
//
// Constructors:
//
//   - [New] -- zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFile] / [ReadHexFile] -- key files written by the CLI
//
// After Close, any access panics. Close is idempotent.
package secret
