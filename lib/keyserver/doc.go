// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyserver implements one member of a threshold key-server
// network. Each server holds an age keypair. At encryption time the
// client wraps one Shamir share of the data key to every server; at
// decryption time the client sends a server its wrapped share with a
// session certificate and an access predicate transaction. The server
// releases the share, re-encrypted to the session's ephemeral key,
// only when:
//
//   - the certificate is signed by its subject, live, and scoped to the
//     server's access package
//   - the transaction is sent by the certificate's subject and calls a
//     seal_approve predicate over the same content identity the share
//     is bound to
//   - a dry run of the transaction on the ledger succeeds
//
// [Server.FetchKey] is the in-process entry point. [Server.Handler]
// serves it over HTTP with CBOR bodies, and [Client] is the matching
// HTTP client.
package keyserver
