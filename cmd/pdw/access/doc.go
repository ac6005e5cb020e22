// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package access implements the grant management commands: "pdw
// grant", "pdw revoke" and "pdw grants", plus "pdw authtx" for
// building and inspecting the authorization transactions key servers
// evaluate.
//
// Grant and revoke validate locally against the ledger's current grant
// state before anything is signed. Without --submit they print the
// unsigned transaction digest and optionally write its bytes, so a
// transaction can be reviewed before it is sent.
package access
