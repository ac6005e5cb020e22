// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for wallet packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls.
// [RequireEventually] polls a condition under the same safety valve,
// for tests that must observe a goroutine reaching a state (a caller
// joined to an in-flight session creation, a key server counting a
// request) before proceeding. These are the only places in the test
// suite where real wall-clock timeouts are used; logic under test
// reads time from lib/clock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: key server IDs, app IDs, blob contents.
//
// [StateDir] creates a private wallet root laid out like the CLI's
// (state/, blobs/).
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no wallet-internal dependencies.
package testutil
