// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// errReadOnly is returned by snapshotLedger.Submit.
var errReadOnly = errors.New("snapshot ledger is read-only")

// snapshotLedger serves the development ledger snapshot the pdw CLI
// writes. Reads reload the snapshot when its modification time
// changes, so predicates are evaluated against the latest grants. A
// snapshot that fails to load leaves the previous state in place and
// makes reads fail, which key servers report as unavailable.
type snapshotLedger struct {
	path   string
	config memledger.Config

	mu       sync.Mutex
	current  *memledger.Ledger
	modTime  time.Time
	reloaded int
}

var _ ledger.Client = (*snapshotLedger)(nil)

func newSnapshotLedger(path string, config memledger.Config) *snapshotLedger {
	return &snapshotLedger{path: path, config: config, current: memledger.New(config)}
}

// ledger returns the ledger for the snapshot's current contents.
func (s *snapshotLedger) ledger() (*memledger.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking ledger snapshot: %w", err)
	}
	if !info.ModTime().Equal(s.modTime) {
		loaded, err := memledger.Load(s.path, s.config)
		if err != nil {
			return nil, err
		}
		s.current, s.modTime = loaded, info.ModTime()
		s.reloaded++
	}
	return s.current, nil
}

func (s *snapshotLedger) OwnedObjects(ctx context.Context, owner address.Address, typeTag string) ([]ledger.Object, error) {
	current, err := s.ledger()
	if err != nil {
		return nil, err
	}
	return current.OwnedObjects(ctx, owner, typeTag)
}

func (s *snapshotLedger) BuildMoveCall(target string, arguments []ledger.Argument) (*ledger.TransactionHandle, error) {
	current, err := s.ledger()
	if err != nil {
		return nil, err
	}
	return current.BuildMoveCall(target, arguments)
}

func (s *snapshotLedger) Submit(ctx context.Context, transaction []byte, sign signer.Signer) (*ledger.SubmitResult, error) {
	return nil, errReadOnly
}

func (s *snapshotLedger) DryRun(ctx context.Context, transaction []byte) (*ledger.DryRunResult, error) {
	current, err := s.ledger()
	if err != nil {
		return nil, err
	}
	return current.DryRun(ctx, transaction)
}
