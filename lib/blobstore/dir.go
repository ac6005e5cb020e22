// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/statefile"
)

// Dir stores blobs as files under a root directory, fanned out by
// the first two hex byte pairs of the ID:
//
//	<root>/<hex[:2]>/<hex[2:4]>/<hex>
type Dir struct {
	root string

	// writeMu serializes Put so two writers of the same blob do not
	// share a temporary file.
	writeMu sync.Mutex
}

// NewDir returns a store rooted at root, creating the directory if
// needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("blobstore: directory store requires a path")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("blobstore: creating %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(id contenthash.Hash) string {
	hex := id.String()
	return filepath.Join(d.root, hex[:2], hex[2:4], hex)
}

// Put stores data and returns its ID.
func (d *Dir) Put(ctx context.Context, data []byte) (contenthash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return contenthash.Hash{}, err
	}
	id := contenthash.Blob(data)
	path := d.path(id)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return contenthash.Hash{}, fmt.Errorf("blobstore: creating shard directory: %w", err)
	}
	if err := statefile.WriteBytes(path, data); err != nil {
		return contenthash.Hash{}, fmt.Errorf("blobstore: %w", err)
	}
	return id, nil
}

// Get returns the blob stored under id.
func (d *Dir) Get(ctx context.Context, id contenthash.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading %s: %w", id, err)
	}
	if err := verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the blob stored under id. Deleting an unknown ID is
// not an error.
func (d *Dir) Delete(ctx context.Context, id contenthash.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return statefile.Remove(d.path(id))
}
