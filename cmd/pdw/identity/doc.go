// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements the wallet identity commands: "pdw
// keygen" creates a signing key and "pdw context" manages the master
// derivation salt and the context wallets derived from it.
package identity
