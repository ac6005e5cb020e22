// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authority is the client side of threshold decryption.
//
// An [Authority] seals plaintext into an envelope whose data key can
// only be recovered by presenting a session proof and an approval
// transaction to the key servers that hold its shares. [Threshold]
// implements it over a fixed set of [keyserver.Fetcher] members:
// Encrypt splits a fresh data key t-of-n and wraps one share per
// member, Decrypt asks members in envelope order until t shares are
// released and recombines them.
//
// Refusals are reported with three sentinels: [ErrDenied] when the
// access predicate failed or the proof was rejected, [ErrTimeout]
// when the context ended first, and [ErrUnavailable] when too few
// members could answer at all. Nothing is retried.
package authority
