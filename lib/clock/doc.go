// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every expiry decision in the wallet (grant activity, session TTLs,
// predicate evaluation on the in-memory ledger, key-server proof
// checks) reads the time through a Clock so that tests can pin the
// exact millisecond a grant stops being active. Production code uses
// Real(); tests use Fake() and move time with Advance or Set.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := session.NewStore(session.Config{Clock: c})
//	c.Advance(31 * time.Minute) // every session is now expired
package clock
