// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package derivation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/address"
)

const (
	contextTag = "pdw.context-wallet.v1"
	indexTag   = "pdw.context-wallet.index.v1"
)

var (
	// ErrInvalidIdentityFormat is returned when a master identity is
	// not a well-formed address. It wraps [address.ErrInvalidFormat].
	ErrInvalidIdentityFormat = fmt.Errorf("derivation: invalid identity format: %w", address.ErrInvalidFormat)

	// ErrMissingSalt is returned when no salt is supplied.
	ErrMissingSalt = errors.New("derivation: missing salt")
)

// DeriveContextIdentity returns the context wallet address for appID
// under master. Different app IDs yield different addresses; the same
// inputs always yield the same address.
func DeriveContextIdentity(master address.Address, appID string, salt []byte) (address.Address, error) {
	if len(salt) == 0 {
		return address.Zero, ErrMissingSalt
	}
	message := make([]byte, 0, len(contextTag)+1+address.Length+4+len(appID))
	message = append(message, contextTag...)
	message = append(message, 0x00)
	message = append(message, master[:]...)
	message = binary.BigEndian.AppendUint32(message, uint32(len(appID)))
	message = append(message, appID...)
	return mac(salt, message), nil
}

// DeriveContextIdentityString parses master from its hex form and
// derives the context wallet address.
func DeriveContextIdentityString(master, appID string, salt []byte) (address.Address, error) {
	parsed, err := address.Parse(master)
	if err != nil {
		return address.Zero, fmt.Errorf("%w: %q", ErrInvalidIdentityFormat, master)
	}
	return DeriveContextIdentity(parsed, appID, salt)
}

// DeriveIndexedIdentity returns the address of the context wallet at
// index under master.
func DeriveIndexedIdentity(master address.Address, index uint64, salt []byte) (address.Address, error) {
	if len(salt) == 0 {
		return address.Zero, ErrMissingSalt
	}
	message := make([]byte, 0, len(indexTag)+1+address.Length+8)
	message = append(message, indexTag...)
	message = append(message, 0x00)
	message = append(message, master[:]...)
	message = binary.BigEndian.AppendUint64(message, index)
	return mac(salt, message), nil
}

func mac(key, message []byte) address.Address {
	hasher := hmac.New(sha256.New, key)
	hasher.Write(message)
	var result address.Address
	copy(result[:], hasher.Sum(nil))
	return result
}
