// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/keyserver"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/session"
	"github.com/bureau-foundation/pdw/lib/shamir"
)

// Member is one key server of a threshold authority.
type Member struct {
	// ID names the server in envelopes.
	ID string

	// PublicKey is the server's age recipient. Shares are wrapped to
	// it at encryption time.
	PublicKey string

	// Fetcher reaches the server at decryption time.
	Fetcher keyserver.Fetcher
}

// Config configures a [Threshold] authority.
type Config struct {
	PackageID address.Address
	Members   []Member

	// Threshold is the default number of shares required to decrypt.
	// Zero means a simple majority of Members.
	Threshold int

	Compression envelope.Compression
	Logger      *slog.Logger
}

// Threshold is an [Authority] backed by t-of-n key servers.
type Threshold struct {
	packageID   address.Address
	members     []Member
	byID        map[string]Member
	threshold   int
	compression envelope.Compression
	logger      *slog.Logger
}

var _ Authority = (*Threshold)(nil)

// NewThreshold validates config and returns the authority.
func NewThreshold(config Config) (*Threshold, error) {
	if config.PackageID.IsZero() {
		return nil, errors.New("authority: PackageID is required")
	}
	if len(config.Members) == 0 {
		return nil, errors.New("authority: at least one member is required")
	}
	if len(config.Members) > shamir.MaxShares {
		return nil, fmt.Errorf("authority: %d members, limit %d", len(config.Members), shamir.MaxShares)
	}
	byID := make(map[string]Member, len(config.Members))
	for _, member := range config.Members {
		if member.ID == "" {
			return nil, errors.New("authority: member ID is required")
		}
		if _, duplicate := byID[member.ID]; duplicate {
			return nil, fmt.Errorf("authority: duplicate member %q", member.ID)
		}
		if err := sealed.ParsePublicKey(member.PublicKey); err != nil {
			return nil, fmt.Errorf("authority: member %q: %w", member.ID, err)
		}
		if member.Fetcher == nil {
			return nil, fmt.Errorf("authority: member %q has no fetcher", member.ID)
		}
		byID[member.ID] = member
	}
	threshold := config.Threshold
	if threshold == 0 {
		threshold = len(config.Members)/2 + 1
	}
	if err := checkThreshold(threshold, len(config.Members)); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Threshold{
		packageID:   config.PackageID,
		members:     config.Members,
		byID:        byID,
		threshold:   threshold,
		compression: config.Compression,
		logger:      logger,
	}, nil
}

func checkThreshold(threshold, members int) error {
	if threshold < 1 || threshold > members {
		return fmt.Errorf("authority: threshold %d with %d members", threshold, members)
	}
	return nil
}

// DefaultThreshold returns the threshold used when a request does not
// set one.
func (a *Threshold) DefaultThreshold() int {
	return a.threshold
}

// Encrypt seals request.Plaintext and splits its data key across the
// members.
func (a *Threshold) Encrypt(ctx context.Context, request EncryptRequest) (*EncryptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, timeoutError(ctx, "encrypting")
	}
	if len(request.Identity) < address.Length {
		return nil, fmt.Errorf("authority: identity has %d bytes, want at least %d", len(request.Identity), address.Length)
	}
	threshold := request.Threshold
	if threshold == 0 {
		threshold = a.threshold
	}
	if err := checkThreshold(threshold, len(a.members)); err != nil {
		return nil, err
	}

	dataKey, err := envelope.NewDataKey()
	if err != nil {
		return nil, err
	}
	result, err := a.seal(request, threshold, dataKey)
	if err != nil {
		dataKey.Close()
		return nil, err
	}
	return result, nil
}

func (a *Threshold) seal(request EncryptRequest, threshold int, dataKey *secret.Buffer) (*EncryptResult, error) {
	shares, err := shamir.Split(dataKey.Bytes(), len(a.members), threshold)
	if err != nil {
		return nil, fmt.Errorf("authority: splitting data key: %w", err)
	}
	defer func() {
		for _, share := range shares {
			secret.Zero(share.Value)
		}
	}()

	compression := request.Compression
	if compression == envelope.CompressionNone {
		compression = a.compression
	}
	sealedEnvelope := &envelope.Envelope{
		PackageID:   a.packageID,
		Identity:    request.Identity,
		Threshold:   uint8(threshold),
		Compression: compression,
		Shares:      make([]envelope.Share, len(a.members)),
	}
	for i, member := range a.members {
		wrapped, err := keyserver.WrapShare(member.PublicKey, request.Identity, shares[i])
		if err != nil {
			return nil, fmt.Errorf("authority: wrapping share for %q: %w", member.ID, err)
		}
		sealedEnvelope.Shares[i] = envelope.Share{
			ServerID: member.ID,
			Index:    shares[i].Index,
			Wrapped:  wrapped,
		}
	}
	if err := sealedEnvelope.Seal(dataKey, request.Plaintext); err != nil {
		return nil, err
	}
	ciphertext, err := sealedEnvelope.Marshal()
	if err != nil {
		return nil, err
	}

	a.logger.Debug("content encrypted",
		"content", sealedEnvelope.Content().String(),
		"threshold", threshold,
		"members", len(a.members),
		"compression", sealedEnvelope.Compression.String(),
	)
	return &EncryptResult{
		Ciphertext:  ciphertext,
		DataKey:     dataKey,
		Fingerprint: envelope.Fingerprint(ciphertext),
	}, nil
}

// Decrypt collects shares from the members in envelope order until
// the envelope's threshold is met, then recombines the data key and
// opens the envelope. A predicate refusal ends the attempt with
// [ErrDenied] and a rejected session proof with [ErrInvalidSession]:
// members evaluate the same predicate and proof, so asking the rest
// cannot change the outcome. Any other member failure only skips that
// member, and too few shares yields [ErrUnavailable].
func (a *Threshold) Decrypt(ctx context.Context, ciphertext []byte, proof *session.Proof, transaction []byte) ([]byte, error) {
	parsed, err := envelope.Parse(ciphertext)
	if err != nil {
		return nil, err
	}
	if parsed.PackageID != a.packageID {
		return nil, fmt.Errorf("%w: envelope is for access package %s, this authority serves %s",
			ErrUnavailable, parsed.PackageID, a.packageID)
	}
	if proof == nil {
		return nil, errors.New("authority: session proof is required")
	}
	certificate := proof.Certificate()

	threshold := int(parsed.Threshold)
	collected := make([]shamir.Share, 0, threshold)
	defer func() {
		for _, share := range collected {
			secret.Zero(share.Value)
		}
	}()

	var failures []error
	for _, share := range parsed.Shares {
		if len(collected) == threshold {
			break
		}
		if ctx.Err() != nil {
			return nil, timeoutError(ctx, "collecting key shares")
		}
		member, known := a.byID[share.ServerID]
		if !known {
			failures = append(failures, fmt.Errorf("no member %q", share.ServerID))
			continue
		}

		response, err := member.Fetcher.FetchKey(ctx, &keyserver.FetchRequest{
			Identity:     parsed.Identity,
			ShareIndex:   share.Index,
			WrappedShare: share.Wrapped,
			Certificate:  *certificate,
			Transaction:  transaction,
		})
		if err != nil {
			if ctx.Err() != nil || isContextError(err) {
				return nil, fmt.Errorf("%w: key server %q: %w", ErrTimeout, member.ID, err)
			}
			switch {
			case errors.Is(err, keyserver.ErrDenied):
				a.logger.Warn("key share refused",
					"content", parsed.Content().String(),
					"server", member.ID,
					"error", err,
				)
				return nil, fmt.Errorf("%w: key server %q: %w", ErrDenied, member.ID, err)
			case errors.Is(err, keyserver.ErrInvalidProof):
				a.logger.Warn("session proof rejected", "server", member.ID, "error", err)
				return nil, fmt.Errorf("%w: key server %q: %w", ErrInvalidSession, member.ID, err)
			}
			// Unavailable servers and requests one server cannot
			// serve, such as a share wrapped to a rotated key, cost
			// that member only.
			a.logger.Warn("key server failed", "server", member.ID, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", member.ID, err))
			continue
		}
		if response.ShareIndex != share.Index {
			failures = append(failures, fmt.Errorf("%s: released share %d, requested %d",
				member.ID, response.ShareIndex, share.Index))
			continue
		}

		value, err := proof.OpenShare(response.EncryptedShare)
		if err != nil {
			if errors.Is(err, session.ErrClosed) {
				return nil, err
			}
			failures = append(failures, fmt.Errorf("%s: %w", member.ID, err))
			continue
		}
		collected = append(collected, shamir.Share{Index: share.Index, Value: value})
	}

	if len(collected) < threshold {
		return nil, fmt.Errorf("%w: %d of %d required key shares released: %w",
			ErrUnavailable, len(collected), threshold, errors.Join(failures...))
	}

	key, err := shamir.Combine(collected)
	if err != nil {
		return nil, fmt.Errorf("authority: combining key shares: %w", err)
	}
	dataKey, err := secret.NewFromBytes(key)
	if err != nil {
		return nil, err
	}
	defer dataKey.Close()
	return parsed.Open(dataKey)
}
