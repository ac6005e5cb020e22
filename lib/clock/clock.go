// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the current time. Functions that make expiry
// decisions take a Clock (or a struct with a Clock field) instead of
// calling time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// OrReal returns c, or Real() when c is nil. Config structs use it so
// that a zero Clock field means wall-clock time.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}
