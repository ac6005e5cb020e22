// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authtx builds the access-module transactions the wallet
// core hands to the ledger and to key servers.
//
// The seal_approve family is an access predicate: key servers dry-run
// it and release key shares only if it executes successfully. Three
// requestor modes exist:
//
//   - Wallet (canonical): access::seal_approve_wallet(id, wallet,
//     scope, registry, clock), sent by the requesting wallet. The
//     predicate checks the wallet's grants over the content.
//   - App (deprecated): access::seal_approve_app(id, app_id, scope,
//     registry, clock), sent by the user. App-ID grants are not bound
//     to a key, so any holder of the app ID string qualifies.
//   - Legacy (deprecated): access::seal_approve(id, registry, clock),
//     sent by the user. Only the owner passes.
//
// Deprecated modes still build, and report a [Notice] through the
// builder's callback and logger. They never fail because of the
// deprecation.
//
// The package also builds grant_access, revoke_access and
// register_context_wallet calls, and parses all of these calls back
// out of encoded transactions for evaluation.
//
// Builds are pure. The same configuration and inputs always produce
// byte-identical [Transaction.Bytes] output.
package authtx
