// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer defines the signing capability the wallet core
// consumes and an Ed25519 implementation of it.
//
// A personal-message signature covers blake2b-256 over an intent
// prefix (scope 3, version 0, app 0), the ULEB128 length of the
// message, and the message. The serialized signature is the scheme
// flag byte (0x00 for Ed25519), the 64-byte signature, and the 32-byte
// public key, so a verifier can recover the key and check that it
// hashes to the claimed address.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/secret"
)

// SignatureLength is the size of a serialized Ed25519 signature.
const SignatureLength = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

const schemeEd25519 = 0x00

var personalMessageIntent = [3]byte{3, 0, 0}

var (
	// ErrInvalidSignature is returned when a signature does not verify
	// or is not in the serialized format.
	ErrInvalidSignature = errors.New("signer: invalid signature")

	// ErrAddressMismatch is returned when a signature verifies but its
	// embedded public key belongs to a different address.
	ErrAddressMismatch = errors.New("signer: public key does not match address")
)

// Signer signs personal messages on behalf of one address. Wallet
// extensions, hardware keys and the in-process [Ed25519] all satisfy
// it.
type Signer interface {
	Address() address.Address
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// PersonalMessageDigest returns the 32-byte digest a personal-message
// signature covers.
func PersonalMessageDigest(message []byte) [32]byte {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		panic("signer: blake2b-256 init: " + err.Error())
	}
	hasher.Write(personalMessageIntent[:])
	hasher.Write(appendUvarint(nil, uint64(len(message))))
	hasher.Write(message)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Verify checks a serialized personal-message signature against the
// message and the address that claims to have produced it.
func Verify(signer address.Address, message, signature []byte) error {
	if len(signature) != SignatureLength || signature[0] != schemeEd25519 {
		return fmt.Errorf("%w: want %d bytes with Ed25519 flag", ErrInvalidSignature, SignatureLength)
	}
	raw := signature[1 : 1+ed25519.SignatureSize]
	publicKey := ed25519.PublicKey(signature[1+ed25519.SignatureSize:])

	digest := PersonalMessageDigest(message)
	if !ed25519.Verify(publicKey, digest[:], raw) {
		return ErrInvalidSignature
	}
	if address.FromEd25519(publicKey) != signer {
		return fmt.Errorf("%w: key belongs to %s, not %s", ErrAddressMismatch, address.FromEd25519(publicKey), signer)
	}
	return nil
}

// Ed25519 is an in-process [Signer] whose seed lives in a
// [secret.Buffer].
type Ed25519 struct {
	seed      *secret.Buffer
	publicKey ed25519.PublicKey
	address   address.Address
}

// Generate creates a signer with a fresh random seed.
func Generate() (*Ed25519, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("signer: generating seed: %w", err)
	}
	return FromSeed(seed)
}

// FromSeed creates a signer from a 32-byte seed. The seed slice is
// zeroed after being copied into protected memory.
func FromSeed(seed []byte) (*Ed25519, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	publicKey := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	buffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return &Ed25519{
		seed:      buffer,
		publicKey: publicKey,
		address:   address.FromEd25519(publicKey),
	}, nil
}

// Load reads a hex-encoded seed file written by [Ed25519.Save].
func Load(path string) (*Ed25519, error) {
	buffer, err := secret.ReadHexFile(path, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	publicKey := ed25519.NewKeyFromSeed(buffer.Bytes()).Public().(ed25519.PublicKey)
	return &Ed25519{
		seed:      buffer,
		publicKey: publicKey,
		address:   address.FromEd25519(publicKey),
	}, nil
}

// Save writes the seed hex-encoded to path with 0600 permissions.
func (s *Ed25519) Save(path string) error {
	return secret.WriteHexFile(path, s.seed.Bytes())
}

// Address returns the address derived from the public key.
func (s *Ed25519) Address() address.Address {
	return s.address
}

// PublicKey returns the Ed25519 public key.
func (s *Ed25519) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// SignPersonalMessage returns the serialized signature over the
// personal-message digest of message.
func (s *Ed25519) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	privateKey := ed25519.NewKeyFromSeed(s.seed.Bytes())
	defer secret.Zero(privateKey)

	digest := PersonalMessageDigest(message)
	signature := make([]byte, 0, SignatureLength)
	signature = append(signature, schemeEd25519)
	signature = append(signature, ed25519.Sign(privateKey, digest[:])...)
	signature = append(signature, s.publicKey...)
	return signature, nil
}

// Close releases the seed.
func (s *Ed25519) Close() error {
	return s.seed.Close()
}

func appendUvarint(buffer []byte, value uint64) []byte {
	for value >= 0x80 {
		buffer = append(buffer, byte(value)|0x80)
		value >>= 7
	}
	return append(buffer, byte(value))
}
