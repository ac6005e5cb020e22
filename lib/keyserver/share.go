// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"bytes"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/shamir"
)

// sharePayload is the plaintext of a wrapped share. Binding the
// content identity inside the wrapping stops a share from one envelope
// being presented with a transaction for another.
type sharePayload struct {
	Identity []byte `cbor:"1,keyasint"`
	Index    uint8  `cbor:"2,keyasint"`
	Value    []byte `cbor:"3,keyasint"`
}

// WrapShare encrypts share, bound to identity, to a key server's age
// public key.
func WrapShare(recipient string, identity []byte, share shamir.Share) ([]byte, error) {
	payload, err := codec.Marshal(sharePayload{Identity: identity, Index: share.Index, Value: share.Value})
	if err != nil {
		return nil, fmt.Errorf("keyserver: encoding share: %w", err)
	}
	defer secret.Zero(payload)
	wrapped, err := sealed.Encrypt(payload, recipient)
	if err != nil {
		return nil, fmt.Errorf("keyserver: wrapping share: %w", err)
	}
	return wrapped, nil
}

// unwrapShare decrypts a wrapped share with privateKey and checks its
// binding.
func unwrapShare(wrapped []byte, privateKey *secret.Buffer, identity []byte, index uint8) ([]byte, error) {
	opened, err := sealed.Decrypt(wrapped, privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped share: %w", ErrInvalidRequest, err)
	}
	defer opened.Close()

	var payload sharePayload
	if err := codec.UnmarshalStrict(opened.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("%w: wrapped share: %w", ErrInvalidRequest, err)
	}
	if !bytes.Equal(payload.Identity, identity) {
		return nil, fmt.Errorf("%w: share is bound to a different content identity", ErrInvalidRequest)
	}
	if payload.Index != index {
		return nil, fmt.Errorf("%w: share index %d, request says %d", ErrInvalidRequest, payload.Index, index)
	}
	return payload.Value, nil
}
