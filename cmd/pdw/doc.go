// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Pdw is the personal data wallet command-line tool. It encrypts data
// under wallet identities, manages the on-ledger grants that share it,
// and decrypts through the configured threshold key servers.
//
// Run "pdw --help" for the command list.
package main
