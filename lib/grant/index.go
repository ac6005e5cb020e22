// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// TypeTag is the ledger type of grant objects published by the access
// module.
const TypeTag = "access::AccessGrant"

// Index holds grants per content identity and supports concurrent
// reads with single-writer updates. Callers load it from the ledger
// with [Index.LoadFromLedger] or feed it grants as they are created.
//
// Reads (Grants, EffectivePermission, Owner) take the read lock.
// Writes (Add, Revoke, SetOwner, SweepExpired) take the write lock.
type Index struct {
	mu sync.RWMutex

	grants map[address.Address][]AccessGrant

	// owners maps content identity to its owner. Content without an
	// entry is owned by the identity itself, which is the case for
	// content encrypted under the owner's own address.
	owners map[address.Address]address.Address

	// revoked remembers revoked grant IDs after SweepExpired drops
	// their records, so a stale copy cannot be Put back as active.
	revoked map[uuid.UUID]bool
}

// NewIndex creates an empty grant index.
func NewIndex() *Index {
	return &Index{
		grants: make(map[address.Address][]AccessGrant),
		owners:  make(map[address.Address]address.Address),
		revoked: make(map[uuid.UUID]bool),
	}
}

// SetOwner records that content is owned by owner. Context wallet
// content is owned by the master identity that registered the wallet.
// Ownership is set once: content that already has another owner, or
// that already has grants under its current owner, is refused with
// [ErrOwnerConflict].
func (idx *Index) SetOwner(content, owner address.Address) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.ownerLocked(content)
	if current == owner {
		idx.owners[content] = owner
		return nil
	}
	if _, explicit := idx.owners[content]; explicit {
		return fmt.Errorf("%w: %s is owned by %s", ErrOwnerConflict, content, current)
	}
	if len(idx.grants[content]) > 0 {
		return fmt.Errorf("%w: %s already has grants under %s", ErrOwnerConflict, content, current)
	}
	idx.owners[content] = owner
	return nil
}

// Owner returns the owner of content.
func (idx *Index) Owner(content address.Address) address.Address {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ownerLocked(content)
}

func (idx *Index) ownerLocked(content address.Address) address.Address {
	if owner, exists := idx.owners[content]; exists {
		return owner
	}
	return content
}

// Add validates candidate against the grants already indexed for its
// content and stores it.
func (idx *Index) Add(candidate AccessGrant, now time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing := idx.grants[candidate.ContentIdentity]
	owner := idx.ownerLocked(candidate.ContentIdentity)
	if err := ValidateNewGrant(existing, candidate, owner, now); err != nil {
		return err
	}
	idx.grants[candidate.ContentIdentity] = append(existing, candidate)
	return nil
}

// Put stores a grant without validation. Use it for records read back
// from the ledger, which validated them at creation.
func (idx *Index) Put(g AccessGrant) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !g.Revoked && idx.revoked[g.ID] {
		return
	}
	existing := idx.grants[g.ContentIdentity]
	for position := range existing {
		if existing[position].ID == g.ID {
			// Revocation is monotonic even across reloads.
			if existing[position].Revoked && !g.Revoked {
				return
			}
			existing[position] = g
			return
		}
	}
	idx.grants[g.ContentIdentity] = append(existing, g)
}

// Revoke marks every grant to grantee over content revoked. actor must
// be the owner or an active admin. Returns the number of grants newly
// revoked.
func (idx *Index) Revoke(content address.Address, grantee string, actor address.Address, now time.Time) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing := idx.grants[content]
	if err := CanRevoke(existing, actor, idx.ownerLocked(content), content, now); err != nil {
		return 0, err
	}

	revoked := 0
	for position, g := range existing {
		if !g.matches(grantee, content) || g.Revoked {
			continue
		}
		existing[position] = Revoke(g, now)
		revoked++
	}
	return revoked, nil
}

// Grants returns a copy of every grant over content, revoked and
// expired ones included.
func (idx *Index) Grants(content address.Address) []AccessGrant {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	existing := idx.grants[content]
	if len(existing) == 0 {
		return nil
	}
	result := make([]AccessGrant, len(existing))
	copy(result, existing)
	return result
}

// EffectivePermission returns the highest active scope grantee holds
// over content. The owner always holds admin.
func (idx *Index) EffectivePermission(grantee string, content address.Address, now time.Time) (Scope, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if owner, err := address.Parse(grantee); err == nil && owner == idx.ownerLocked(content) {
		return ScopeAdmin, true
	}
	return EffectivePermission(idx.grants[content], grantee, content, now)
}

// SweepExpired drops grants that are revoked or expired at now and
// returns the affected content identities in sorted order. Revoked IDs
// stay behind as tombstones for [Index.Put].
func (idx *Index) SweepExpired(now time.Time) []address.Address {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var affected []address.Address
	for content, existing := range idx.grants {
		kept := existing[:0]
		for _, g := range existing {
			if IsActive(g, now) {
				kept = append(kept, g)
				continue
			}
			if g.Revoked {
				idx.revoked[g.ID] = true
			}
		}
		if len(kept) == len(existing) {
			continue
		}
		affected = append(affected, content)
		if len(kept) == 0 {
			delete(idx.grants, content)
		} else {
			idx.grants[content] = kept
		}
	}
	sort.Slice(affected, func(i, j int) bool {
		return affected[i].String() < affected[j].String()
	})
	return affected
}

// LoadFromLedger reads every grant object owned by owner and adds it
// to the index with [Index.Put]. Returns the number of grants loaded.
func (idx *Index) LoadFromLedger(ctx context.Context, client ledger.Client, owner address.Address) (int, error) {
	objects, err := client.OwnedObjects(ctx, owner, TypeTag)
	if err != nil {
		return 0, fmt.Errorf("grant: listing grants owned by %s: %w", owner, err)
	}
	for _, object := range objects {
		g, err := Decode(object.Content)
		if err != nil {
			return 0, fmt.Errorf("grant: object %s: %w", object.ID, err)
		}
		idx.Put(g)
	}
	return len(objects), nil
}

// Encode returns the CBOR form of g as stored in ledger objects.
func Encode(g AccessGrant) ([]byte, error) {
	return codec.Marshal(g)
}

// Decode parses a ledger grant object.
func Decode(data []byte) (AccessGrant, error) {
	var g AccessGrant
	if err := codec.Unmarshal(data, &g); err != nil {
		return AccessGrant{}, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	if g.AccessLevel == "" {
		g.AccessLevel = g.Scope.String()
	}
	return g, nil
}
