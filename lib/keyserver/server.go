// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/session"
)

var (
	// ErrDenied is returned when the access predicate does not hold.
	ErrDenied = errors.New("keyserver: access denied")

	// ErrInvalidProof is returned for a session certificate that does
	// not verify, has expired, or does not match the transaction.
	ErrInvalidProof = errors.New("keyserver: invalid session proof")

	// ErrInvalidRequest is returned for a malformed request: bad
	// transaction bytes, a share for another server or identity.
	ErrInvalidRequest = errors.New("keyserver: invalid request")

	// ErrUnavailable is returned when the server cannot evaluate the
	// predicate because the ledger failed.
	ErrUnavailable = errors.New("keyserver: unavailable")
)

// FetchRequest asks a key server to release its share of one
// envelope's data key.
type FetchRequest struct {
	// Identity is the envelope's content identity.
	Identity []byte `cbor:"1,keyasint"`

	// ShareIndex and WrappedShare come from the envelope entry for
	// this server.
	ShareIndex   uint8  `cbor:"2,keyasint"`
	WrappedShare []byte `cbor:"3,keyasint"`

	// Certificate is the requester's signed session challenge.
	Certificate session.Certificate `cbor:"4,keyasint"`

	// Transaction is the encoded seal_approve transaction.
	Transaction []byte `cbor:"5,keyasint"`
}

// FetchResponse carries a released share, encrypted to the session's
// recipient.
type FetchResponse struct {
	ServerID       string `cbor:"1,keyasint"`
	ShareIndex     uint8  `cbor:"2,keyasint"`
	EncryptedShare []byte `cbor:"3,keyasint"`
}

// Config configures a [Server].
type Config struct {
	// ID names the server in envelopes.
	ID string

	// Keypair is the server's age keypair. The server does not take
	// ownership; the caller closes it after the server is done.
	Keypair *sealed.Keypair

	// PackageID is the access package whose predicates this server
	// evaluates.
	PackageID address.Address

	// Ledger evaluates predicates by dry run.
	Ledger ledger.Client

	// MaxSessionTTL bounds the session certificates the server
	// accepts. Zero means session.DefaultMaxTTL.
	MaxSessionTTL time.Duration

	// Clock checks certificate expiry. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives one event per decision. Nil discards them.
	Logger *slog.Logger
}

// Server is one key server. It holds no mutable state and is safe for
// concurrent use.
type Server struct {
	id            string
	privateKey    *secret.Buffer
	publicKey     string
	packageID     address.Address
	ledger        ledger.Client
	maxSessionTTL time.Duration
	clock         clock.Clock
	logger        *slog.Logger
}

// New creates a key server.
func New(config Config) (*Server, error) {
	if config.ID == "" {
		return nil, errors.New("keyserver: server ID is required")
	}
	if config.Keypair == nil || config.Keypair.PrivateKey == nil {
		return nil, errors.New("keyserver: keypair is required")
	}
	if config.PackageID.IsZero() {
		return nil, errors.New("keyserver: package ID is required")
	}
	if config.Ledger == nil {
		return nil, errors.New("keyserver: ledger client is required")
	}
	maxSessionTTL := config.MaxSessionTTL
	if maxSessionTTL <= 0 {
		maxSessionTTL = session.DefaultMaxTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		id:            config.ID,
		privateKey:    config.Keypair.PrivateKey,
		publicKey:     config.Keypair.PublicKey,
		packageID:     config.PackageID,
		ledger:        config.Ledger,
		maxSessionTTL: maxSessionTTL,
		clock:         clock.OrReal(config.Clock),
		logger:        logger.With("server", config.ID),
	}, nil
}

// ID returns the server's ID.
func (s *Server) ID() string {
	return s.id
}

// PublicKey returns the age public key shares are wrapped to.
func (s *Server) PublicKey() string {
	return s.publicKey
}

// FetchKey evaluates request and releases the server's share when
// access is allowed.
func (s *Server) FetchKey(ctx context.Context, request *FetchRequest) (*FetchResponse, error) {
	response, err := s.fetchKey(ctx, request)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrUnavailable) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "key request refused", "error", err)
		return nil, err
	}
	return response, nil
}

func (s *Server) fetchKey(ctx context.Context, request *FetchRequest) (*FetchResponse, error) {
	if len(request.Identity) < address.Length || len(request.WrappedShare) == 0 || len(request.Transaction) == 0 {
		return nil, fmt.Errorf("%w: identity, wrapped share and transaction are required", ErrInvalidRequest)
	}

	challenge, err := request.Certificate.Verify(s.clock.Now(), s.maxSessionTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if challenge.PackageID != s.packageID {
		return nil, fmt.Errorf("%w: certificate is for package %s", ErrInvalidProof, challenge.PackageID)
	}

	transaction, err := authtx.Decode(request.Transaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if transaction.Sender != challenge.Subject {
		return nil, fmt.Errorf("%w: transaction sender %s is not session subject %s", ErrInvalidProof, transaction.Sender, challenge.Subject)
	}
	call, err := transaction.Call()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if call.Package != s.packageID || !authtx.IsApproval(call.Function) {
		return nil, fmt.Errorf("%w: %s is not an access predicate of %s", ErrInvalidRequest, call.Target(), s.packageID)
	}
	approval, err := authtx.ParseApproval(call)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !bytes.Equal(approval.Identity, request.Identity) {
		return nil, fmt.Errorf("%w: transaction is for a different content identity", ErrInvalidRequest)
	}

	result, err := s.ledger.DryRun(ctx, request.Transaction)
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: dry run: %w", ErrUnavailable, err)
	}
	if result.Status != ledger.StatusSuccess {
		return nil, fmt.Errorf("%w: %s", ErrDenied, result.Error)
	}

	share, err := unwrapShare(request.WrappedShare, s.privateKey, request.Identity, request.ShareIndex)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(share)
	encrypted, err := sealed.Encrypt(share, challenge.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: session recipient: %w", ErrInvalidProof, err)
	}

	s.logger.Info("key share released",
		"subject", challenge.Subject.String(),
		"function", call.Function,
		"content", approval.Content.String(),
	)
	return &FetchResponse{ServerID: s.id, ShareIndex: request.ShareIndex, EncryptedShare: encrypted}, nil
}
