// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contenthash computes the domain-separated BLAKE3 digests the
// wallet uses as identifiers: envelope fingerprints, blob IDs,
// transaction digests, and the identity binding inside envelope AAD.
package contenthash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII domain name zero-padded to 32 bytes. Changing a key
// invalidates every stored hash in that domain.
type domainKey [32]byte

var (
	fingerprintDomainKey = domainKey{
		'p', 'd', 'w', '.', 'e', 'n', 'v', 'e', 'l', 'o', 'p', 'e', '.',
		'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0,
	}

	blobDomainKey = domainKey{
		'p', 'd', 'w', '.', 'b', 'l', 'o', 'b', 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	transactionDomainKey = domainKey{
		'p', 'd', 'w', '.', 't', 'r', 'a', 'n', 's', 'a', 'c', 't', 'i', 'o', 'n', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	identityDomainKey = domainKey{
		'p', 'd', 'w', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Fingerprint identifies an encrypted envelope. It covers the full
// serialized envelope, so two encryptions of the same plaintext have
// different fingerprints.
func Fingerprint(envelope []byte) Hash {
	return keyedHash(fingerprintDomainKey, envelope)
}

// Blob returns the content address of a stored blob.
func Blob(data []byte) Hash {
	return keyedHash(blobDomainKey, data)
}

// Transaction returns the digest of encoded transaction bytes.
func Transaction(encoded []byte) Hash {
	return keyedHash(transactionDomainKey, encoded)
}

// Identity binds a content identity into envelope associated data.
func Identity(identity []byte) Hash {
	return keyedHash(identityDomainKey, identity)
}

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails if the key is not 32 bytes, which is
		// impossible with the domainKey type.
		panic("contenthash: blake3.NewKeyed failed: " + err.Error())
	}
	hasher.Write(data)
	var result Hash
	hasher.Sum(result[:0])
	return result
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Parse decodes a 64-digit hex string.
func Parse(text string) (Hash, error) {
	var result Hash
	if len(text) != 2*len(result) {
		return result, fmt.Errorf("contenthash: %q has %d characters, want %d", text, len(text), 2*len(result))
	}
	if _, err := hex.Decode(result[:], []byte(text)); err != nil {
		return result, fmt.Errorf("contenthash: %q: %w", text, err)
	}
	return result, nil
}

// MarshalText implements [encoding.TextMarshaler].
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
