// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package grant models access grants: permission from the owner of
// encrypted content to a grantee (a wallet address or an app ID) to
// read, write or administer that content until an expiry time.
//
// The ledger holds the authoritative grant records. This package is
// the client-side model: the [AccessGrant] type, the validators that
// enforce who may create and revoke grants, the effective-permission
// query, and [Index], a concurrent in-memory view loaded from the
// ledger.
//
// Grant invariants:
//
//   - ExpiresAt is strictly after GrantedAt and after the creation
//     time. No grant is permanent.
//   - Revoked moves from false to true and never back. Renewed access
//     needs a new grant.
//   - A grant is active iff it is not revoked and now < ExpiresAt.
//   - Only the content owner, or a holder of an active admin grant over
//     the content, may create or revoke grants. A non-owner grantor
//     may never grant to itself.
//
// Duplicate grants are allowed; the union of active grants determines
// the effective permission.
package grant
