// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authority"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/session"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// DefaultSessionTTL is the session lifetime used when neither the
// request nor the configuration sets one.
const DefaultSessionTTL = 10 * time.Minute

var (
	// ErrOwnerMismatch is returned by Decrypt when the caller names an
	// owner other than the one the envelope is encrypted under.
	ErrOwnerMismatch = errors.New("wallet: owner does not match ciphertext")

	// ErrSignerMismatch is returned when the signer does not control
	// the address that must send the transaction.
	ErrSignerMismatch = errors.New("wallet: signer does not control the sender address")
)

// Timeouts bounds each network-bound step. Zero leaves the step bounded
// only by the caller's context.
type Timeouts struct {
	// Session bounds session creation, including the signer.
	Session time.Duration

	// Ledger bounds grant lookups and transaction submission.
	Ledger time.Duration

	// Authority bounds one encryption or decryption at the authority.
	Authority time.Duration
}

// Config configures a [Client].
type Config struct {
	Authority authority.Authority
	Builder   *authtx.Builder
	Sessions  *session.Store

	// Ledger is read for grant state and receives submitted
	// transactions. Optional: without it, grant validation uses only
	// Grants.
	Ledger ledger.Client

	// Grants is the local grant view. Nil creates an empty index.
	Grants *grant.Index

	// Registry records context wallets registered through the client.
	// Nil creates an empty registry.
	Registry *derivation.Registry

	// SessionTTL is the default session lifetime.
	SessionTTL time.Duration

	Timeouts Timeouts
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Client is the encryption facade. It is safe for concurrent use.
type Client struct {
	authority  authority.Authority
	builder    *authtx.Builder
	sessions   *session.Store
	ledger     ledger.Client
	grants     *grant.Index
	registry   *derivation.Registry
	sessionTTL time.Duration
	timeouts   Timeouts
	clock      clock.Clock
	logger     *slog.Logger
}

// New validates config and returns a client.
func New(config Config) (*Client, error) {
	if config.Authority == nil {
		return nil, errors.New("wallet: Authority is required")
	}
	if config.Builder == nil {
		return nil, errors.New("wallet: Builder is required")
	}
	if config.Sessions == nil {
		return nil, errors.New("wallet: Sessions is required")
	}
	sessionTTL := config.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = min(DefaultSessionTTL, config.Sessions.MaxTTL())
	}
	if err := config.Sessions.ValidateTTL(sessionTTL); err != nil {
		return nil, fmt.Errorf("wallet: session TTL: %w", err)
	}
	grants := config.Grants
	if grants == nil {
		grants = grant.NewIndex()
	}
	c := clock.OrReal(config.Clock)
	registry := config.Registry
	if registry == nil {
		registry = derivation.NewRegistry(c)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		authority:  config.Authority,
		builder:    config.Builder,
		sessions:   config.Sessions,
		ledger:     config.Ledger,
		grants:     grants,
		registry:   registry,
		sessionTTL: sessionTTL,
		timeouts:   config.Timeouts,
		clock:      c,
		logger:     logger,
	}, nil
}

// Grants returns the client's local grant view.
func (c *Client) Grants() *grant.Index {
	return c.grants
}

// Registry returns the client's context wallet registry.
func (c *Client) Registry() *derivation.Registry {
	return c.registry
}

// EncryptResult is the outcome of [Client.Encrypt].
type EncryptResult struct {
	// Ciphertext is the raw envelope.
	Ciphertext []byte

	// BackupKey decrypts Ciphertext without the key servers. The
	// caller owns it and must Close it.
	BackupKey *secret.Buffer

	// Fingerprint identifies Ciphertext.
	Fingerprint contenthash.Hash
}

// Encrypt seals plaintext under owner. threshold is the number of key
// servers needed to decrypt; zero uses the authority's default.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte, owner address.Address, threshold int) (*EncryptResult, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: zero owner", derivation.ErrInvalidIdentityFormat)
	}
	ctx, cancel := withTimeout(ctx, c.timeouts.Authority)
	defer cancel()

	result, err := c.authority.Encrypt(ctx, authority.EncryptRequest{
		Identity:  owner.Bytes(),
		Plaintext: plaintext,
		Threshold: threshold,
	})
	if err != nil {
		return nil, timeoutError(ctx, err)
	}
	c.logger.Info("content encrypted",
		"owner", owner.String(),
		"fingerprint", result.Fingerprint.String(),
		"size", len(plaintext),
	)
	return &EncryptResult{
		Ciphertext:  result.Ciphertext,
		BackupKey:   result.DataKey,
		Fingerprint: result.Fingerprint,
	}, nil
}

// DecryptRequest describes who asks to decrypt.
type DecryptRequest struct {
	// Owner is the identity the content is encrypted under. Zero
	// takes it from the ciphertext.
	Owner address.Address

	// Requestor selects wallet mode: the requesting wallet, which
	// must hold an active grant and sends the transaction.
	Requestor address.Address

	// AppID selects app mode when Requestor is zero: the signer asks
	// on behalf of an app holding an active grant. Deprecated.
	AppID string

	// Scope is the permission required. Zero means read.
	Scope grant.Scope

	// Signer controls the sending address. In wallet mode it must be
	// Requestor. In legacy and app modes it is the user, who must own
	// the content.
	Signer signer.Signer

	// TTL is the lifetime of a new session. Zero uses the client's
	// default.
	TTL time.Duration
}

// requestor returns the authorization requestor for request, with
// user as the sender in legacy and app modes. With neither Requestor
// nor AppID set it is the legacy owner-only mode.
func (r DecryptRequest) requestor(user address.Address) authtx.Requestor {
	switch {
	case !r.Requestor.IsZero():
		return authtx.Wallet(r.Requestor)
	case r.AppID != "":
		return authtx.App(user, r.AppID)
	default:
		return authtx.Legacy(user)
	}
}

// Decrypt returns the plaintext of ciphertext if the access predicate
// approves the request.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte, request DecryptRequest) ([]byte, error) {
	parsed, err := envelope.Parse(ciphertext)
	if err != nil {
		return nil, err
	}
	content := parsed.Content()
	owner := request.Owner
	if owner.IsZero() {
		owner = content
	}
	if owner != content {
		return nil, fmt.Errorf("%w: ciphertext is under %s, caller named %s", ErrOwnerMismatch, content, owner)
	}
	if request.Signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrSignerMismatch)
	}
	scope := request.Scope
	if scope == 0 {
		scope = grant.ScopeRead
	}
	requestor := request.requestor(request.Signer.Address())
	sender := requestor.Sender()
	if request.Signer.Address() != sender {
		return nil, fmt.Errorf("%w: signer is %s, sender is %s", ErrSignerMismatch, request.Signer.Address(), sender)
	}
	ttl := request.TTL
	if ttl == 0 {
		ttl = c.sessionTTL
	}

	// The session must be active before the transaction is built.
	proof, err := c.session(ctx, sender, ttl, request.Signer)
	if err != nil {
		return nil, err
	}

	transaction, err := c.builder.Build(parsed.Identity, requestor, scope)
	if err != nil {
		return nil, err
	}
	transactionBytes, err := transaction.Bytes()
	if err != nil {
		return nil, err
	}

	authorityCtx, cancel := withTimeout(ctx, c.timeouts.Authority)
	defer cancel()
	plaintext, err := c.authority.Decrypt(authorityCtx, ciphertext, proof, transactionBytes)
	if err != nil {
		if errors.Is(err, authority.ErrInvalidSession) {
			// The next request signs a new session.
			c.sessions.Invalidate(sender, proof)
		}
		err = timeoutError(authorityCtx, err)
		c.logger.Warn("decryption failed",
			"content", content.String(),
			"requestor", requestor.String(),
			"error", err,
		)
		return nil, err
	}
	c.logger.Debug("content decrypted",
		"content", content.String(),
		"requestor", requestor.String(),
	)
	return plaintext, nil
}

func (c *Client) session(ctx context.Context, subject address.Address, ttl time.Duration, sign signer.Signer) (*session.Proof, error) {
	ctx, cancel := withTimeout(ctx, c.timeouts.Session)
	defer cancel()
	proof, err := c.sessions.GetOrCreate(ctx, subject, ttl, sign)
	if err != nil {
		return nil, timeoutError(ctx, err)
	}
	return proof, nil
}

// DeriveContextIdentity returns the context wallet address for appID
// under master. See [derivation.DeriveContextIdentity].
func (c *Client) DeriveContextIdentity(master address.Address, appID string, salt []byte) (address.Address, error) {
	return derivation.DeriveContextIdentity(master, appID, salt)
}

// withTimeout derives a context bounded by d, or a cancellable copy
// when d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutError wraps err in [authority.ErrTimeout] when it was caused
// by ctx ending or by a session wait timing out.
func timeoutError(ctx context.Context, err error) error {
	if errors.Is(err, authority.ErrTimeout) {
		return err
	}
	if errors.Is(err, session.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", authority.ErrTimeout, err)
	}
	return err
}

// ledgerError classifies a ledger failure as a timeout or as
// unavailability.
func ledgerError(ctx context.Context, err error) error {
	if err = timeoutError(ctx, err); errors.Is(err, authority.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: ledger: %w", authority.ErrUnavailable, err)
}

// decodeContextWallet parses a context-wallet ledger object.
func decodeContextWallet(object ledger.Object) (derivation.ContextWallet, error) {
	var wallet derivation.ContextWallet
	if err := codec.Unmarshal(object.Content, &wallet); err != nil {
		return derivation.ContextWallet{}, fmt.Errorf("wallet: context wallet object %s: %w", object.ID, err)
	}
	return wallet, nil
}
