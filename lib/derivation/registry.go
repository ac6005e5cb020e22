// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package derivation

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/clock"
)

// TypeTag is the ledger type of context-wallet registration objects.
// Their content is the CBOR encoding of [ContextWallet].
const TypeTag = "access::ContextWallet"

// ContextWallet is a registered sub-identity of a master. Records are
// never mutated once registered.
type ContextWallet struct {
	Master    address.Address `cbor:"1,keyasint"`
	Index     uint64          `cbor:"2,keyasint"`
	Address   address.Address `cbor:"3,keyasint"`
	AppHint   string          `cbor:"4,keyasint,omitempty"`
	CreatedAt int64           `cbor:"5,keyasint"`
}

// masterEntry tracks the wallets registered under one master, in
// index order.
type masterEntry struct {
	record  *MasterRecord
	wallets []ContextWallet
	byHint  map[string]int
}

// Registry assigns context wallet indexes per master and remembers the
// resulting wallets. Reads take a read lock; registration takes the
// write lock.
type Registry struct {
	mu      sync.RWMutex
	clock   clock.Clock
	masters map[address.Address]*masterEntry
}

// NewRegistry creates an empty registry. A nil clock uses the real
// clock.
func NewRegistry(c clock.Clock) *Registry {
	return &Registry{
		clock:   clock.OrReal(c),
		masters: make(map[address.Address]*masterEntry),
	}
}

// AddMaster makes a master record available for registration. The
// registry does not take ownership of the record; the caller closes it.
func (r *Registry) AddMaster(record *MasterRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.masters[record.Master]; exists {
		entry.record = record
		return
	}
	r.masters[record.Master] = &masterEntry{
		record: record,
		byHint: make(map[string]int),
	}
}

// Register returns the context wallet for appHint under master,
// deriving and recording a new one at the next index if none exists.
// The empty hint always registers a new wallet.
func (r *Registry) Register(master address.Address, appHint string) (ContextWallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.masters[master]
	if !exists {
		return ContextWallet{}, fmt.Errorf("%w: no master record for %s", ErrMissingSalt, master)
	}
	if appHint != "" {
		if position, found := entry.byHint[appHint]; found {
			return entry.wallets[position], nil
		}
	}

	index := uint64(len(entry.wallets))
	derived, err := entry.record.DeriveAt(index)
	if err != nil {
		return ContextWallet{}, err
	}
	wallet := ContextWallet{
		Master:    master,
		Index:     index,
		Address:   derived,
		AppHint:   appHint,
		CreatedAt: r.clock.Now().UnixMilli(),
	}
	entry.wallets = append(entry.wallets, wallet)
	if appHint != "" {
		entry.byHint[appHint] = len(entry.wallets) - 1
	}
	return wallet, nil
}

// Lookup returns the wallet registered under appHint.
func (r *Registry) Lookup(master address.Address, appHint string) (ContextWallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.masters[master]
	if !exists {
		return ContextWallet{}, false
	}
	position, found := entry.byHint[appHint]
	if !found {
		return ContextWallet{}, false
	}
	return entry.wallets[position], true
}

// Wallets returns a copy of every wallet registered under master, in
// index order.
func (r *Registry) Wallets(master address.Address) []ContextWallet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.masters[master]
	if !exists {
		return nil
	}
	result := make([]ContextWallet, len(entry.wallets))
	copy(result, entry.wallets)
	return result
}

// Owner returns the master that registered wallet, if any.
func (r *Registry) Owner(wallet address.Address) (address.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for master, entry := range r.masters {
		for _, registered := range entry.wallets {
			if registered.Address == wallet {
				return master, true
			}
		}
	}
	return address.Zero, false
}

// Verify checks that wallet's address is what its master's salt
// derives at its index. Without a record for the master it returns an
// error wrapping [ErrMissingSalt].
func (r *Registry) Verify(wallet ContextWallet) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.masters[wallet.Master]
	if !exists {
		return fmt.Errorf("%w: no master record for %s", ErrMissingSalt, wallet.Master)
	}
	derived, err := entry.record.DeriveAt(wallet.Index)
	if err != nil {
		return err
	}
	if derived != wallet.Address {
		return fmt.Errorf("derivation: wallet %s does not derive from master %s at index %d", wallet.Address, wallet.Master, wallet.Index)
	}
	return nil
}

// Restore records a wallet loaded from persistent state. It fails if
// the wallet's address does not match what the master's salt derives,
// or if the index is not the next one.
func (r *Registry) Restore(wallet ContextWallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.masters[wallet.Master]
	if !exists {
		return fmt.Errorf("%w: no master record for %s", ErrMissingSalt, wallet.Master)
	}
	if wallet.Index != uint64(len(entry.wallets)) {
		return fmt.Errorf("derivation: restoring index %d, next index is %d", wallet.Index, len(entry.wallets))
	}
	derived, err := entry.record.DeriveAt(wallet.Index)
	if err != nil {
		return err
	}
	if derived != wallet.Address {
		return fmt.Errorf("derivation: wallet %s does not derive from master %s at index %d", wallet.Address, wallet.Master, wallet.Index)
	}
	entry.wallets = append(entry.wallets, wallet)
	if wallet.AppHint != "" {
		entry.byHint[wallet.AppHint] = len(entry.wallets) - 1
	}
	return nil
}
