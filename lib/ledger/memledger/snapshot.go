// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/statefile"
)

// snapshotVersion is the encoding version of [snapshot].
const snapshotVersion = 1

// snapshot is the on-disk form of a ledger: its objects, the digests
// of executed transactions and the addresses that signed them.
type snapshot struct {
	Version  int                `cbor:"1,keyasint"`
	Objects  []ledger.Object    `cbor:"2,keyasint"`
	Executed []contenthash.Hash `cbor:"3,keyasint"`
	Accounts []address.Address  `cbor:"4,keyasint,omitempty"`
}

// Save writes the ledger state to path atomically.
func (l *Ledger) Save(path string) error {
	l.mu.Lock()
	state := snapshot{Version: snapshotVersion}
	for _, object := range l.objects {
		state.Objects = append(state.Objects, *object)
	}
	for digest := range l.executed {
		state.Executed = append(state.Executed, digest)
	}
	for account := range l.accounts {
		state.Accounts = append(state.Accounts, account)
	}
	l.mu.Unlock()

	slices.SortFunc(state.Objects, func(a, b ledger.Object) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	slices.SortFunc(state.Executed, func(a, b contenthash.Hash) int {
		return strings.Compare(a.String(), b.String())
	})
	slices.SortFunc(state.Accounts, func(a, b address.Address) int {
		return strings.Compare(a.String(), b.String())
	})
	if err := statefile.Write(path, state); err != nil {
		return fmt.Errorf("memledger: saving: %w", err)
	}
	return nil
}

// Load creates a ledger from a snapshot written by [Ledger.Save].
// Context wallets are restored before grants so grant objects keep
// their owners. Masters and grantors count as accounts even when the
// snapshot predates account tracking.
func Load(path string, config Config) (*Ledger, error) {
	var state snapshot
	if err := statefile.Read(path, &state); err != nil {
		return nil, fmt.Errorf("memledger: loading: %w", err)
	}
	if state.Version != snapshotVersion {
		return nil, fmt.Errorf("memledger: %s: snapshot version %d, want %d", path, state.Version, snapshotVersion)
	}

	l := New(config)
	for _, object := range state.Objects {
		if object.Type != ContextWalletType {
			continue
		}
		var wallet derivation.ContextWallet
		if err := codec.Unmarshal(object.Content, &wallet); err != nil {
			return nil, fmt.Errorf("memledger: context wallet %s: %w", object.ID, err)
		}
		if err := l.grants.SetOwner(wallet.Address, wallet.Master); err != nil {
			return nil, fmt.Errorf("memledger: context wallet %s: %w", object.ID, err)
		}
		l.contexts[wallet.Address] = wallet
		l.accounts[wallet.Master] = true
		l.objects[object.ID] = &object
	}
	for _, object := range state.Objects {
		switch object.Type {
		case ContextWalletType:
		case grant.TypeTag:
			g, err := grant.Decode(object.Content)
			if err != nil {
				return nil, fmt.Errorf("memledger: grant %s: %w", object.ID, err)
			}
			l.grants.Put(g)
			l.grantObjects[g.ID] = object.ID
			l.accounts[g.GrantedBy] = true
			l.objects[object.ID] = &object
		default:
			return nil, fmt.Errorf("memledger: object %s has unknown type %q", object.ID, object.Type)
		}
	}
	for _, digest := range state.Executed {
		l.executed[digest] = true
	}
	for _, account := range state.Accounts {
		l.accounts[account] = true
	}
	return l, nil
}
