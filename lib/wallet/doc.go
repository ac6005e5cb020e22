// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wallet is the encryption facade of the personal data wallet.
//
// A [Client] ties the access-control pieces together. Encrypt seals
// plaintext under the owner's address through an [authority.Authority].
// Decrypt parses the envelope, acquires a session for the requesting
// identity (reusing an active one), builds the approval transaction for
// the requestor's mode and hands all three to the authority. The grant
// operations validate against the grants the ledger currently holds and
// return unsigned transactions for the caller to sign and [Client.Submit].
//
// Ciphertext is raw bytes everywhere in this package. Nothing encodes
// it as text.
//
// Every network-bound step runs under the deadline configured in
// [Timeouts]. A deadline surfaces as [authority.ErrTimeout], distinct
// from [authority.ErrDenied] and [authority.ErrUnavailable]. The client
// never retries.
package wallet
