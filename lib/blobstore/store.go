// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore stores encrypted envelopes by content address.
//
// Blob IDs are [contenthash.Blob] digests of the stored bytes, so a
// Put of the same bytes always yields the same ID and writing an ID
// twice is a no-op. Every Get verifies the bytes against the ID.
// Three stores are provided: [Dir] for a local directory tree,
// [Memory] for tests, and [Redis] for a shared store.
package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/contenthash"
)

var (
	// ErrNotFound is returned by Get for an unknown ID.
	ErrNotFound = errors.New("blobstore: blob not found")

	// ErrCorrupt is returned by Get when stored bytes no longer hash
	// to their ID.
	ErrCorrupt = errors.New("blobstore: blob does not match its ID")
)

// Store is a content-addressed blob store.
type Store interface {
	Put(ctx context.Context, data []byte) (contenthash.Hash, error)
	Get(ctx context.Context, id contenthash.Hash) ([]byte, error)
	Delete(ctx context.Context, id contenthash.Hash) error
}

// Config selects and configures a store for [Open].
type Config struct {
	// Kind is "dir", "memory" or "redis".
	Kind string

	// Path is the root directory of a "dir" store.
	Path string

	// RedisAddr and RedisPrefix configure a "redis" store.
	RedisAddr   string
	RedisPrefix string
}

// Open returns the store config selects. The caller closes the
// returned closer, which is a no-op for stores without connections.
func Open(config Config) (Store, func() error, error) {
	switch config.Kind {
	case "dir":
		store, err := NewDir(config.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case "memory":
		return NewMemory(), func() error { return nil }, nil
	case "redis":
		if config.RedisAddr == "" {
			return nil, nil, errors.New("blobstore: redis store requires an address")
		}
		store := DialRedis(config.RedisAddr, config.RedisPrefix)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("blobstore: unknown store kind %q", config.Kind)
	}
}

func verify(id contenthash.Hash, data []byte) error {
	if actual := contenthash.Blob(data); actual != id {
		return fmt.Errorf("%w: %s hashes to %s", ErrCorrupt, id, actual)
	}
	return nil
}
