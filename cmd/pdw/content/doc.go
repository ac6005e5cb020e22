// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package content implements "pdw encrypt" and "pdw decrypt".
//
// Ciphertext is read from and written to files or the configured blob
// store. Decryption failures exit with distinct codes so scripts can
// tell a refusal from an outage:
//
//	1  any other error
//	2  access denied
//	3  timed out
//	4  key servers unavailable
package content
