// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/secret"
)

// Version is the current envelope format version.
const Version = 1

// KeySize is the size of data-encryption and content keys.
const KeySize = 32

// MaxPlaintextSize bounds the declared plaintext size, and with it the
// allocation made when decompressing.
const MaxPlaintextSize = 256 << 20

var hkdfInfoContent = []byte("pdw.envelope.v1")

var (
	// ErrCorrupted is returned when an envelope fails structural
	// sanity checks.
	ErrCorrupted = errors.New("envelope: corrupted ciphertext")

	// ErrAuthentication is returned when the AEAD rejects the
	// ciphertext: the reconstructed key is wrong or the envelope was
	// tampered with.
	ErrAuthentication = errors.New("envelope: authentication failed")
)

// Share is one key server's share of the data-encryption key, wrapped
// to that server's public key.
type Share struct {
	ServerID string `cbor:"1,keyasint"`
	Index    uint8  `cbor:"2,keyasint"`
	Wrapped  []byte `cbor:"3,keyasint"`
}

// Envelope is a parsed ciphertext.
type Envelope struct {
	Version       uint8           `cbor:"1,keyasint"`
	PackageID     address.Address `cbor:"2,keyasint"`
	Identity      []byte          `cbor:"3,keyasint"`
	Threshold     uint8           `cbor:"4,keyasint"`
	Shares        []Share         `cbor:"5,keyasint"`
	Compression   Compression     `cbor:"6,keyasint"`
	PlaintextSize uint64          `cbor:"7,keyasint"`
	Nonce         []byte          `cbor:"8,keyasint"`
	Ciphertext    []byte          `cbor:"9,keyasint"`
}

// Marshal returns the envelope's deterministic encoding.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: encoding: %w", err)
	}
	return data, nil
}

// Content returns the address the envelope is encrypted under.
func (e *Envelope) Content() address.Address {
	var content address.Address
	copy(content[:], e.Identity)
	return content
}

// ShareFor returns the share held for serverID.
func (e *Envelope) ShareFor(serverID string) (Share, bool) {
	for _, share := range e.Shares {
		if share.ServerID == serverID {
			return share, true
		}
	}
	return Share{}, false
}

// Parse decodes and sanity-checks envelope bytes. Every failure wraps
// [ErrCorrupted].
func Parse(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCorrupted)
	}
	var envelope Envelope
	if err := codec.UnmarshalStrict(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if err := envelope.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return &envelope, nil
}

func (e *Envelope) check() error {
	if e.Version != Version {
		return fmt.Errorf("version %d", e.Version)
	}
	if e.PackageID.IsZero() {
		return errors.New("missing access package")
	}
	if len(e.Identity) < address.Length {
		return fmt.Errorf("identity has %d bytes, want at least %d", len(e.Identity), address.Length)
	}
	if e.Threshold == 0 || int(e.Threshold) > len(e.Shares) {
		return fmt.Errorf("threshold %d with %d shares", e.Threshold, len(e.Shares))
	}
	servers := make(map[string]bool, len(e.Shares))
	indexes := make(map[uint8]bool, len(e.Shares))
	for _, share := range e.Shares {
		if share.ServerID == "" || share.Index == 0 || len(share.Wrapped) == 0 {
			return fmt.Errorf("incomplete share for server %q", share.ServerID)
		}
		if servers[share.ServerID] || indexes[share.Index] {
			return fmt.Errorf("duplicate share for server %q index %d", share.ServerID, share.Index)
		}
		servers[share.ServerID] = true
		indexes[share.Index] = true
	}
	if _, err := e.Compression.check(); err != nil {
		return err
	}
	if e.PlaintextSize > MaxPlaintextSize {
		return fmt.Errorf("plaintext size %d exceeds %d", e.PlaintextSize, MaxPlaintextSize)
	}
	if len(e.Nonce) != chacha20poly1305.NonceSizeX {
		return fmt.Errorf("nonce has %d bytes, want %d", len(e.Nonce), chacha20poly1305.NonceSizeX)
	}
	if len(e.Ciphertext) < chacha20poly1305.Overhead {
		return fmt.Errorf("ciphertext has %d bytes, shorter than the authentication tag", len(e.Ciphertext))
	}
	if e.Compression == CompressionNone && uint64(len(e.Ciphertext)-chacha20poly1305.Overhead) != e.PlaintextSize {
		return fmt.Errorf("uncompressed ciphertext length %d does not match plaintext size %d",
			len(e.Ciphertext)-chacha20poly1305.Overhead, e.PlaintextSize)
	}
	return nil
}

// Fingerprint returns the content fingerprint of envelope bytes.
func Fingerprint(data []byte) contenthash.Hash {
	return contenthash.Fingerprint(data)
}

// NewDataKey returns a fresh random data-encryption key.
func NewDataKey() (*secret.Buffer, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("envelope: generating data key: %w", err)
	}
	return secret.NewFromBytes(key)
}

// Seal compresses and encrypts plaintext under a content key derived
// from dataKey and e.Identity. e.Compression is a preference:
// incompressible plaintext is stored uncompressed. The header fields
// (Version, PackageID, Identity) must be set before sealing.
//
// dataKey is borrowed and NOT closed.
func (e *Envelope) Seal(dataKey *secret.Buffer, plaintext []byte) error {
	if len(plaintext) > MaxPlaintextSize {
		return fmt.Errorf("envelope: plaintext is %d bytes, limit %d", len(plaintext), MaxPlaintextSize)
	}
	if len(e.Identity) < address.Length {
		return fmt.Errorf("envelope: identity has %d bytes, want at least %d", len(e.Identity), address.Length)
	}
	e.Version = Version

	body, compression, err := compress(plaintext, e.Compression)
	if err != nil {
		return err
	}
	e.Compression = compression
	e.PlaintextSize = uint64(len(plaintext))

	contentKey, err := e.contentKey(dataKey)
	if err != nil {
		return err
	}
	defer contentKey.Close()

	aead, err := chacha20poly1305.NewX(contentKey.Bytes())
	if err != nil {
		return fmt.Errorf("envelope: creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("envelope: generating nonce: %w", err)
	}
	e.Nonce = nonce
	e.Ciphertext = aead.Seal(nil, nonce, body, e.associatedData())
	return nil
}

// Open authenticates and decrypts the envelope with dataKey.
//
// dataKey is borrowed and NOT closed.
func (e *Envelope) Open(dataKey *secret.Buffer) ([]byte, error) {
	contentKey, err := e.contentKey(dataKey)
	if err != nil {
		return nil, err
	}
	defer contentKey.Close()

	aead, err := chacha20poly1305.NewX(contentKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("envelope: creating XChaCha20-Poly1305 cipher: %w", err)
	}
	body, err := aead.Open(nil, e.Nonce, e.Ciphertext, e.associatedData())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	plaintext, err := decompress(body, e.Compression, int(e.PlaintextSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return plaintext, nil
}

func (e *Envelope) contentKey(dataKey *secret.Buffer) (*secret.Buffer, error) {
	if dataKey.Len() != KeySize {
		return nil, fmt.Errorf("envelope: data key has %d bytes, want %d", dataKey.Len(), KeySize)
	}
	info := make([]byte, 0, len(hkdfInfoContent)+len(e.Identity))
	info = append(info, hkdfInfoContent...)
	info = append(info, e.Identity...)

	reader := hkdf.New(sha256.New, dataKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("envelope: HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// associatedData is version || package || identity hash ||
// compression || uint64_be(plaintext size).
func (e *Envelope) associatedData() []byte {
	identityHash := contenthash.Identity(e.Identity)
	aad := make([]byte, 0, 1+address.Length+len(identityHash)+1+8)
	aad = append(aad, e.Version)
	aad = append(aad, e.PackageID[:]...)
	aad = append(aad, identityHash[:]...)
	aad = append(aad, byte(e.Compression))
	aad = binary.BigEndian.AppendUint64(aad, e.PlaintextSize)
	return aad
}
