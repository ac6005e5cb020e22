// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// NonceSize is the size of the random challenge nonce.
const NonceSize = 16

// MaxClockSkew is how far in the future a certificate's issue time
// may be and still verify.
const MaxClockSkew = time.Minute

var (
	// ErrInvalidCertificate is returned when a certificate is malformed
	// or its signature does not verify for its subject.
	ErrInvalidCertificate = errors.New("session: invalid certificate")

	// ErrExpired is returned for a certificate past its TTL.
	ErrExpired = errors.New("session: expired")
)

// Challenge is the message a subject signs to open a session.
type Challenge struct {
	Subject    address.Address `cbor:"1,keyasint"`
	IssuedAt   int64           `cbor:"2,keyasint"`
	TTLMinutes uint32          `cbor:"3,keyasint"`
	Nonce      []byte          `cbor:"4,keyasint"`

	// Recipient is the session's age X25519 public key.
	Recipient string `cbor:"5,keyasint"`

	// PackageID scopes the session to one access package.
	PackageID address.Address `cbor:"6,keyasint"`
}

// TTL returns the challenge's lifetime.
func (c Challenge) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ExpiresAt returns the end of the session's lifetime.
func (c Challenge) ExpiresAt() time.Time {
	return time.UnixMilli(c.IssuedAt).Add(c.TTL())
}

// Certificate is a signed challenge, presented to key servers with
// every key request. Challenge holds the exact bytes that were signed.
type Certificate struct {
	Challenge []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// Decode parses the signed challenge without verifying it.
func (c *Certificate) Decode() (*Challenge, error) {
	var challenge Challenge
	if err := codec.UnmarshalStrict(c.Challenge, &challenge); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return &challenge, nil
}

// Verify checks the certificate's signature against its subject and
// that it is live at now. maxTTL bounds the TTL a verifier accepts.
func (c *Certificate) Verify(now time.Time, maxTTL time.Duration) (*Challenge, error) {
	challenge, err := c.Decode()
	if err != nil {
		return nil, err
	}
	if challenge.TTLMinutes == 0 || challenge.TTL() > maxTTL {
		return nil, fmt.Errorf("%w: TTL %v exceeds %v", ErrInvalidTTL, challenge.TTL(), maxTTL)
	}
	if len(challenge.Nonce) != NonceSize || challenge.Recipient == "" {
		return nil, fmt.Errorf("%w: incomplete challenge", ErrInvalidCertificate)
	}
	if err := signer.Verify(challenge.Subject, c.Challenge, c.Signature); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	if time.UnixMilli(challenge.IssuedAt).After(now.Add(MaxClockSkew)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrInvalidCertificate)
	}
	if now.After(challenge.ExpiresAt()) {
		return nil, fmt.Errorf("%w: at %s", ErrExpired, challenge.ExpiresAt().UTC().Format(time.RFC3339))
	}
	return challenge, nil
}
