// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/pdw/lib/contenthash"
)

// DefaultRedisPrefix namespaces blob keys: <prefix><hex id>.
const DefaultRedisPrefix = "pdw:blob:"

// Redis stores blobs as plain string values. Blobs never expire.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis wraps an existing client. An empty prefix selects
// [DefaultRedisPrefix].
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// DialRedis connects to the server at addr. The connection is
// established lazily by the first command.
func DialRedis(addr, prefix string) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

func (r *Redis) key(id contenthash.Hash) string {
	return r.prefix + id.String()
}

// Put stores data with SETNX: an existing blob is never rewritten.
func (r *Redis) Put(ctx context.Context, data []byte) (contenthash.Hash, error) {
	id := contenthash.Blob(data)
	if err := r.rdb.SetNX(ctx, r.key(id), data, 0).Err(); err != nil {
		return contenthash.Hash{}, fmt.Errorf("blobstore: storing %s: %w", id, err)
	}
	return id, nil
}

func (r *Redis) Get(ctx context.Context, id contenthash.Hash) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: fetching %s: %w", id, err)
	}
	if err := verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Redis) Delete(ctx context.Context, id contenthash.Hash) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("blobstore: deleting %s: %w", id, err)
	}
	return nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
