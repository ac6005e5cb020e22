// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"fmt"
)

// Scope is a permission level. Higher values include lower ones:
// admin covers write, write covers read.
type Scope uint8

const (
	ScopeRead  Scope = 1
	ScopeWrite Scope = 2
	ScopeAdmin Scope = 3
)

// String returns "read", "write" or "admin".
func (s Scope) String() string {
	switch s {
	case ScopeRead:
		return "read"
	case ScopeWrite:
		return "write"
	case ScopeAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	return s >= ScopeRead && s <= ScopeAdmin
}

// Covers reports whether s is at least required.
func (s Scope) Covers(required Scope) bool {
	return s.Valid() && required.Valid() && s >= required
}

// ParseScope parses "read", "write" or "admin".
func ParseScope(text string) (Scope, error) {
	switch text {
	case "read":
		return ScopeRead, nil
	case "write":
		return ScopeWrite, nil
	case "admin":
		return ScopeAdmin, nil
	default:
		return 0, fmt.Errorf("grant: unknown scope %q", text)
	}
}

// GranteeKind says how a grant's Grantee field is interpreted.
type GranteeKind uint8

const (
	// GranteeWallet grants to a wallet address.
	GranteeWallet GranteeKind = 1

	// GranteeApp grants to an app ID string.
	GranteeApp GranteeKind = 2
)

// String returns "wallet" or "app".
func (k GranteeKind) String() string {
	switch k {
	case GranteeWallet:
		return "wallet"
	case GranteeApp:
		return "app"
	default:
		return fmt.Sprintf("GranteeKind(%d)", uint8(k))
	}
}

// ParseGranteeKind parses "wallet" or "app".
func ParseGranteeKind(text string) (GranteeKind, error) {
	switch text {
	case "wallet":
		return GranteeWallet, nil
	case "app":
		return GranteeApp, nil
	default:
		return 0, fmt.Errorf("grant: unknown grantee kind %q", text)
	}
}
