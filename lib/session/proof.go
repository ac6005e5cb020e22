// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/secret"
)

// ErrClosed is returned after a proof's key or the store has been
// released.
var ErrClosed = errors.New("session: closed")

// Proof is an active session credential for one subject.
type Proof struct {
	Subject   address.Address
	IssuedAt  time.Time
	TTL       time.Duration
	Challenge []byte
	Signature []byte
	Recipient string

	mu     sync.Mutex
	key    *secret.Buffer
	closed bool
}

// Expired reports whether the session has ended at now.
func (p *Proof) Expired(now time.Time) bool {
	return now.After(p.IssuedAt.Add(p.TTL))
}

// ExpiresAt returns the end of the session.
func (p *Proof) ExpiresAt() time.Time {
	return p.IssuedAt.Add(p.TTL)
}

// Certificate returns the signed challenge to present to key servers.
func (p *Proof) Certificate() *Certificate {
	return &Certificate{Challenge: p.Challenge, Signature: p.Signature}
}

// OpenShare decrypts a key share a key server encrypted to this
// session's recipient.
func (p *Proof) OpenShare(ciphertext []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	opened, err := sealed.Decrypt(ciphertext, p.key)
	if err != nil {
		return nil, fmt.Errorf("session: opening key share: %w", err)
	}
	defer opened.Close()
	return bytes.Clone(opened.Bytes()), nil
}

// close zeroes the session key. Idempotent.
func (p *Proof) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.key.Close()
}
