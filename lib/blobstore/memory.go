// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/pdw/lib/contenthash"
)

// Memory is an in-process store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[contenthash.Hash][]byte
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[contenthash.Hash][]byte)}
}

func (m *Memory) Put(ctx context.Context, data []byte) (contenthash.Hash, error) {
	id := contenthash.Blob(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blobs[id]; !exists {
		m.blobs[id] = bytes.Clone(data)
	}
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id contenthash.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, exists := m.blobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return bytes.Clone(data), nil
}

func (m *Memory) Delete(ctx context.Context, id contenthash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
