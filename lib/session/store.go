// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// DefaultMaxTTL is the longest session a store issues unless
// configured otherwise.
const DefaultMaxTTL = 30 * time.Minute

var (
	// ErrInvalidTTL is returned for a TTL that is not a positive whole
	// number of minutes no longer than the maximum.
	ErrInvalidTTL = errors.New("session: invalid TTL")

	// ErrTimeout is returned when the context ends before the session
	// becomes active.
	ErrTimeout = errors.New("session: timed out")

	// ErrSignatureRejected is returned when the signer refuses or
	// produces a signature that does not verify for the subject.
	ErrSignatureRejected = errors.New("session: signature rejected")

	// ErrSubjectMismatch is returned when the signer's address is not
	// the requested subject.
	ErrSubjectMismatch = errors.New("session: signer does not control subject")
)

// State is a subject's position in the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StatePending
	StateActive
	StateExpired
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a [Store].
type Config struct {
	// MaxTTL bounds session lifetimes. Zero means DefaultMaxTTL.
	MaxTTL time.Duration

	// PackageID is embedded in every challenge.
	PackageID address.Address

	// Clock supplies issue and expiry times. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives session lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// flight is one in-progress creation. Joiners wait on done and then
// read proof and err, which are written once before done closes.
type flight struct {
	done    chan struct{}
	proof   *Proof
	err     error
	waiters int
}

// entry is the cached state for one subject.
type entry struct {
	state  State
	proof  *Proof
	flight *flight
}

// Store caches sessions per subject. It is safe for concurrent use.
type Store struct {
	maxTTL    time.Duration
	packageID address.Address
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[address.Address]*entry

	// retired holds proofs replaced by a newer session. They may still
	// be in use by an in-flight decryption, so their keys are released
	// by CleanupExpired once expired, or by Close.
	retired []*Proof
	closed  bool
}

// NewStore creates an empty session store.
func NewStore(config Config) *Store {
	maxTTL := config.MaxTTL
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		maxTTL:    maxTTL,
		packageID: config.PackageID,
		clock:     clock.OrReal(config.Clock),
		logger:    logger,
		entries:   make(map[address.Address]*entry),
	}
}

// MaxTTL returns the longest session the store issues.
func (s *Store) MaxTTL() time.Duration {
	return s.maxTTL
}

// ValidateTTL checks ttl against the store's maximum.
func (s *Store) ValidateTTL(ttl time.Duration) error {
	if ttl <= 0 || ttl > s.maxTTL || ttl%time.Minute != 0 {
		return fmt.Errorf("%w: %v (must be whole minutes in (0, %v])", ErrInvalidTTL, ttl, s.maxTTL)
	}
	return nil
}

// Create opens a new session for subject, signed by sign. If a
// creation for subject is already in flight, Create waits for it and
// returns its result instead of signing a second challenge. A
// successful creation replaces any existing session for subject.
func (s *Store) Create(ctx context.Context, subject address.Address, ttl time.Duration, sign signer.Signer) (*Proof, error) {
	if err := s.ValidateTTL(ttl); err != nil {
		return nil, err
	}
	if sign.Address() != subject {
		return nil, fmt.Errorf("%w: signer is %s, subject is %s", ErrSubjectMismatch, sign.Address(), subject)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	current, exists := s.entries[subject]
	if exists && current.state == StatePending {
		inFlight := current.flight
		inFlight.waiters++
		s.mu.Unlock()
		return s.join(ctx, inFlight)
	}
	if !exists {
		current = &entry{}
		s.entries[subject] = current
	}
	inFlight := &flight{done: make(chan struct{})}
	previous := current.state
	current.state = StatePending
	current.flight = inFlight
	s.mu.Unlock()

	proof, err := s.issue(ctx, subject, ttl, sign)

	s.mu.Lock()
	defer s.mu.Unlock()

	current.flight = nil
	switch {
	case err != nil:
		if s.closed || current.proof == nil {
			delete(s.entries, subject)
		} else {
			current.state = previous
		}
		s.logger.Warn("session creation failed", "subject", subject.String(), "error", err)
	case s.closed:
		proof.close()
		proof, err = nil, ErrClosed
		delete(s.entries, subject)
	default:
		// Pending -> Active. Only this flight's creator can make the
		// transition: joiners never write, and cleanup skips pending
		// entries.
		if current.proof != nil {
			s.retired = append(s.retired, current.proof)
		}
		current.state = StateActive
		current.proof = proof
		s.logger.Info("session created",
			"subject", subject.String(),
			"expires_at", proof.ExpiresAt().UTC().Format(time.RFC3339),
		)
	}

	inFlight.proof, inFlight.err = proof, err
	close(inFlight.done)
	return proof, err
}

// join waits for another caller's creation.
func (s *Store) join(ctx context.Context, inFlight *flight) (*Proof, error) {
	defer func() {
		s.mu.Lock()
		inFlight.waiters--
		s.mu.Unlock()
	}()

	select {
	case <-inFlight.done:
		return inFlight.proof, inFlight.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for in-flight session: %w", ErrTimeout, ctx.Err())
	}
}

// issue generates a session key and gets the challenge signed.
func (s *Store) issue(ctx context.Context, subject address.Address, ttl time.Duration, sign signer.Signer) (*Proof, error) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("session: generating session key: %w", err)
	}
	key := keypair.PrivateKey

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		key.Close()
		return nil, fmt.Errorf("session: generating nonce: %w", err)
	}
	issuedAt := time.UnixMilli(s.clock.Now().UnixMilli())
	challenge := Challenge{
		Subject:    subject,
		IssuedAt:   issuedAt.UnixMilli(),
		TTLMinutes: uint32(ttl / time.Minute),
		Nonce:      nonce,
		Recipient:  keypair.PublicKey,
		PackageID:  s.packageID,
	}
	message, err := codec.Marshal(challenge)
	if err != nil {
		key.Close()
		return nil, fmt.Errorf("session: encoding challenge: %w", err)
	}

	signature, err := sign.SignPersonalMessage(ctx, message)
	if err != nil {
		key.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: signing challenge: %w", ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}
	if err := signer.Verify(subject, message, signature); err != nil {
		key.Close()
		return nil, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}
	if err := ctx.Err(); err != nil {
		key.Close()
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return &Proof{
		Subject:   subject,
		IssuedAt:  issuedAt,
		TTL:       ttl,
		Challenge: message,
		Signature: signature,
		Recipient: challenge.Recipient,
		key:       key,
	}, nil
}

// Active returns the subject's session if one is active and unexpired.
// An expired session moves to StateExpired.
func (s *Store) Active(subject address.Address) (*Proof, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[subject]
	if !exists || current.proof == nil {
		return nil, false
	}
	if current.proof.Expired(s.clock.Now()) {
		if current.state == StateActive {
			current.state = StateExpired
		}
		return nil, false
	}
	if current.state != StateActive && current.state != StatePending {
		return nil, false
	}
	return current.proof, true
}

// Invalidate drops proof from the cache when it is still the
// subject's current session, so the next GetOrCreate issues a new one.
// The proof's key stays usable by in-flight decryptions until it
// expires or the store closes. Reports whether the session was dropped.
func (s *Store) Invalidate(subject address.Address, proof *Proof) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[subject]
	if !exists || current.proof == nil || current.proof != proof || current.state == StatePending {
		return false
	}
	delete(s.entries, subject)
	s.retired = append(s.retired, proof)
	s.logger.Debug("session invalidated", "subject", subject.String())
	return true
}

// GetOrCreate returns the subject's active session, creating one if
// there is none.
func (s *Store) GetOrCreate(ctx context.Context, subject address.Address, ttl time.Duration, sign signer.Signer) (*Proof, error) {
	if proof, ok := s.Active(subject); ok {
		return proof, nil
	}
	return s.Create(ctx, subject, ttl, sign)
}

// State returns the subject's lifecycle state, applying lazy expiry.
func (s *Store) State(subject address.Address) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[subject]
	if !exists {
		return StateUninitialized
	}
	if current.state == StateActive && current.proof.Expired(s.clock.Now()) {
		current.state = StateExpired
	}
	return current.state
}

// CleanupExpired evicts every expired session and releases its key.
// Returns the number of sessions evicted. Pending creations are not
// touched.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for subject, current := range s.entries {
		if current.state == StatePending || current.proof == nil || !current.proof.Expired(now) {
			continue
		}
		current.proof.close()
		delete(s.entries, subject)
		evicted++
	}

	kept := s.retired[:0]
	for _, proof := range s.retired {
		if proof.Expired(now) {
			proof.close()
			continue
		}
		kept = append(kept, proof)
	}
	clear(s.retired[len(kept):])
	s.retired = kept

	if evicted > 0 {
		s.logger.Debug("expired sessions evicted", "count", evicted)
	}
	return evicted
}

// Len returns the number of subjects with a cached or pending session.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases every session key. Creations in flight fail with
// ErrClosed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for subject, current := range s.entries {
		if current.proof != nil {
			current.proof.close()
		}
		if current.state != StatePending {
			delete(s.entries, subject)
		}
	}
	for _, proof := range s.retired {
		proof.close()
	}
	s.retired = nil
	return nil
}

// waiting returns the number of callers joined to subject's in-flight
// creation.
func (s *Store) waiting(subject address.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[subject]
	if !exists || current.flight == nil {
		return 0
	}
	return current.flight.waiters
}
