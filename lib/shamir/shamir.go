// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shamir splits a secret into n shares such that any t of them
// reconstruct it and fewer reveal nothing. The arithmetic is
// HashiCorp Vault's GF(2^8) implementation; this package carries each
// share's x coordinate as an explicit Index so envelopes can record it
// next to the wrapped share.
//
// The wallet uses it to split each envelope's data-encryption key
// across the key servers of a threshold network.
package shamir

import (
	"errors"
	"fmt"

	vaultshamir "github.com/hashicorp/vault/shamir"
)

// MaxShares is the largest number of shares a secret can be split
// into. Share indexes are the non-zero field elements.
const MaxShares = 255

var (
	// ErrInvalidParameters is returned by Split for an impossible
	// threshold or share count.
	ErrInvalidParameters = errors.New("shamir: invalid parameters")

	// ErrInvalidShares is returned by Combine for shares that cannot
	// belong to one split.
	ErrInvalidShares = errors.New("shamir: invalid shares")
)

// Share is one point of the sharing polynomials. Index is the x
// coordinate shared by every byte's polynomial.
type Share struct {
	Index uint8
	Value []byte
}

// Split divides secret into parts shares with the given threshold.
// Indexes are distinct and non-zero but not sequential.
func Split(secret []byte, parts, threshold int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidParameters)
	}
	if threshold < 1 || parts < threshold || parts > MaxShares {
		return nil, fmt.Errorf("%w: %d-of-%d", ErrInvalidParameters, threshold, parts)
	}

	// A 1-of-n split is a constant polynomial: every share is the
	// secret. Vault only splits with a threshold of two or more.
	if threshold == 1 {
		shares := make([]Share, parts)
		for position := range shares {
			shares[position] = Share{Index: uint8(position + 1), Value: append([]byte(nil), secret...)}
		}
		return shares, nil
	}

	tagged, err := vaultshamir.Split(secret, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	shares := make([]Share, len(tagged))
	for position, part := range tagged {
		last := len(part) - 1
		shares[position] = Share{Index: part[last], Value: part[:last]}
	}
	return shares, nil
}

// Combine reconstructs the secret from shares. It needs at least the
// threshold used by Split; with fewer it returns a wrong value that
// cannot be detected here, which is why envelopes authenticate the
// reconstructed key.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares", ErrInvalidShares)
	}
	length := len(shares[0].Value)
	if length == 0 {
		return nil, fmt.Errorf("%w: empty share", ErrInvalidShares)
	}
	seen := make(map[uint8]bool, len(shares))
	for _, share := range shares {
		if share.Index == 0 {
			return nil, fmt.Errorf("%w: index 0", ErrInvalidShares)
		}
		if seen[share.Index] {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrInvalidShares, share.Index)
		}
		seen[share.Index] = true
		if len(share.Value) != length {
			return nil, fmt.Errorf("%w: share lengths %d and %d differ", ErrInvalidShares, length, len(share.Value))
		}
	}

	// Interpolating a single point at x = 0 yields its own value.
	if len(shares) == 1 {
		return append([]byte(nil), shares[0].Value...), nil
	}

	tagged := make([][]byte, len(shares))
	for position, share := range shares {
		part := make([]byte, 0, length+1)
		part = append(part, share.Value...)
		tagged[position] = append(part, share.Index)
	}
	defer func() {
		for _, part := range tagged {
			clear(part)
		}
	}()
	secret, err := vaultshamir.Combine(tagged)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShares, err)
	}
	return secret, nil
}
