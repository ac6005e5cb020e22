// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/pdw/lib/address"
)

var (
	// ErrGrantExpiredAtCreation is returned for a candidate grant whose
	// expiry is not in the future.
	ErrGrantExpiredAtCreation = errors.New("grant: expired at creation")

	// ErrInsufficientGrantorScope is returned when the grantor is
	// neither the owner nor an active admin over the content, or when
	// a non-owner tries to grant to itself.
	ErrInsufficientGrantorScope = errors.New("grant: grantor lacks owner or admin scope")

	// ErrInvalidGrant is returned for structurally malformed grants.
	ErrInvalidGrant = errors.New("grant: invalid grant")

	// ErrOwnerConflict is returned by [Index.SetOwner] for content that
	// already has a different owner or already has grants.
	ErrOwnerConflict = errors.New("grant: content already has an owner")
)

// AccessGrant is one permission record. Times are epoch milliseconds.
type AccessGrant struct {
	ID              uuid.UUID       `cbor:"1,keyasint"`
	ContentIdentity address.Address `cbor:"2,keyasint"`
	Grantee         string          `cbor:"3,keyasint"`
	Kind            GranteeKind     `cbor:"4,keyasint"`
	Scope           Scope           `cbor:"5,keyasint"`

	// AccessLevel is Scope's string form, kept for readers that
	// predate the Scope field. Always derived from Scope.
	AccessLevel string `cbor:"6,keyasint"`

	GrantedBy address.Address `cbor:"7,keyasint"`
	GrantedAt int64           `cbor:"8,keyasint"`
	ExpiresAt int64           `cbor:"9,keyasint"`
	Revoked   bool            `cbor:"10,keyasint"`
	RevokedAt int64           `cbor:"11,keyasint,omitempty"`
}

// New constructs a grant with a fresh ID and AccessLevel derived from
// scope. It does not validate; see [ValidateNewGrant].
func New(content address.Address, grantee string, kind GranteeKind, scope Scope, grantedBy address.Address, grantedAt, expiresAt time.Time) AccessGrant {
	return AccessGrant{
		ID:              uuid.New(),
		ContentIdentity: content,
		Grantee:         grantee,
		Kind:            kind,
		Scope:           scope,
		AccessLevel:     scope.String(),
		GrantedBy:       grantedBy,
		GrantedAt:       grantedAt.UnixMilli(),
		ExpiresAt:       expiresAt.UnixMilli(),
	}
}

// NewWallet is shorthand for a grant to a wallet address.
func NewWallet(content, grantee address.Address, scope Scope, grantedBy address.Address, grantedAt, expiresAt time.Time) AccessGrant {
	return New(content, grantee.String(), GranteeWallet, scope, grantedBy, grantedAt, expiresAt)
}

// GranteeAddress parses Grantee for wallet grants.
func (g AccessGrant) GranteeAddress() (address.Address, error) {
	if g.Kind != GranteeWallet {
		return address.Zero, fmt.Errorf("%w: grantee kind is %s", ErrInvalidGrant, g.Kind)
	}
	return address.Parse(g.Grantee)
}

// matches reports whether g is for grantee over content. Wallet
// grantees compare as addresses so "0xA" matches its padded form.
func (g AccessGrant) matches(grantee string, content address.Address) bool {
	if g.ContentIdentity != content {
		return false
	}
	if g.Grantee == grantee {
		return true
	}
	if g.Kind != GranteeWallet {
		return false
	}
	stored, err := address.Parse(g.Grantee)
	if err != nil {
		return false
	}
	requested, err := address.Parse(grantee)
	return err == nil && stored == requested
}

// IsActive reports whether g grants access at now.
func IsActive(g AccessGrant, now time.Time) bool {
	return !g.Revoked && now.UnixMilli() < g.ExpiresAt
}

// Revoke returns g marked revoked at now. Revoking an already revoked
// grant returns it unchanged, keeping the first RevokedAt.
func Revoke(g AccessGrant, now time.Time) AccessGrant {
	if g.Revoked {
		return g
	}
	g.Revoked = true
	g.RevokedAt = now.UnixMilli()
	return g
}

// EffectivePermission returns the highest scope among active grants
// for grantee over content. The boolean is false when none is active.
func EffectivePermission(grants []AccessGrant, grantee string, content address.Address, now time.Time) (Scope, bool) {
	var best Scope
	for _, g := range grants {
		if !g.matches(grantee, content) || !IsActive(g, now) {
			continue
		}
		if g.Scope > best {
			best = g.Scope
		}
	}
	return best, best != 0
}

// HasAuthority reports whether actor may create or revoke grants over
// content: actor is the owner, or holds an active admin wallet grant.
func HasAuthority(existing []AccessGrant, actor, owner, content address.Address, now time.Time) bool {
	if actor == owner {
		return true
	}
	for _, g := range existing {
		if g.Kind != GranteeWallet || g.Scope != ScopeAdmin {
			continue
		}
		if g.matches(actor.String(), content) && IsActive(g, now) {
			return true
		}
	}
	return false
}

// ValidateNewGrant checks candidate against the grants already held
// over its content. owner is the content's owner.
func ValidateNewGrant(existing []AccessGrant, candidate AccessGrant, owner address.Address, now time.Time) error {
	if !candidate.Scope.Valid() {
		return fmt.Errorf("%w: scope %s", ErrInvalidGrant, candidate.Scope)
	}
	if candidate.AccessLevel != candidate.Scope.String() {
		return fmt.Errorf("%w: access level %q does not match scope %s", ErrInvalidGrant, candidate.AccessLevel, candidate.Scope)
	}
	if candidate.Grantee == "" {
		return fmt.Errorf("%w: empty grantee", ErrInvalidGrant)
	}
	switch candidate.Kind {
	case GranteeWallet:
		if _, err := address.Parse(candidate.Grantee); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}
	case GranteeApp:
	default:
		return fmt.Errorf("%w: grantee kind %s", ErrInvalidGrant, candidate.Kind)
	}
	if candidate.Revoked {
		return fmt.Errorf("%w: new grant is already revoked", ErrInvalidGrant)
	}

	if candidate.ExpiresAt <= now.UnixMilli() || candidate.ExpiresAt <= candidate.GrantedAt {
		return fmt.Errorf("%w: expires_at %d, granted_at %d, now %d",
			ErrGrantExpiredAtCreation, candidate.ExpiresAt, candidate.GrantedAt, now.UnixMilli())
	}

	if !HasAuthority(existing, candidate.GrantedBy, owner, candidate.ContentIdentity, now) {
		return fmt.Errorf("%w: %s over %s", ErrInsufficientGrantorScope, candidate.GrantedBy, candidate.ContentIdentity)
	}
	if candidate.GrantedBy != owner && candidate.matches(candidate.GrantedBy.String(), candidate.ContentIdentity) {
		return fmt.Errorf("%w: %s may not grant to itself", ErrInsufficientGrantorScope, candidate.GrantedBy)
	}
	return nil
}

// CanRevoke checks that actor may revoke grants over content.
func CanRevoke(existing []AccessGrant, actor, owner, content address.Address, now time.Time) error {
	if !HasAuthority(existing, actor, owner, content, now) {
		return fmt.Errorf("%w: %s may not revoke grants over %s", ErrInsufficientGrantorScope, actor, content)
	}
	return nil
}
