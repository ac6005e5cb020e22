// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// Module is the Move module holding the access functions.
const Module = "access"

// Access module functions.
const (
	FunctionSealApprove       = "seal_approve"
	FunctionSealApproveWallet = "seal_approve_wallet"
	FunctionSealApproveApp    = "seal_approve_app"
	FunctionGrantAccess       = "grant_access"
	FunctionRevokeAccess      = "revoke_access"
	FunctionRegisterContext   = "register_context_wallet"
)

var (
	// ErrMissingConfiguration is returned when the content identity or
	// a package, registry or clock reference is absent.
	ErrMissingConfiguration = errors.New("authtx: missing configuration")

	// ErrInvalidContentIdentity is returned for a content identity
	// shorter than an address.
	ErrInvalidContentIdentity = errors.New("authtx: invalid content identity")
)

// Notice reports use of a deprecated authorization mode.
type Notice struct {
	Mode      Mode
	Function  string
	Requestor string
	Message   string
}

// Config holds the on-ledger references every transaction needs.
type Config struct {
	// PackageID is the published access package.
	PackageID address.Address

	// RegistryID is the shared grant registry object.
	RegistryID address.Address

	// ClockID is the shared clock object.
	ClockID address.Address

	// Logger receives deprecation warnings. Nil discards them.
	Logger *slog.Logger

	// OnDeprecated, if set, is called synchronously for every build in
	// a deprecated mode.
	OnDeprecated func(Notice)
}

// Builder constructs access-module transactions. It is safe for
// concurrent use.
type Builder struct {
	config       Config
	logger       *slog.Logger
	deprecations atomic.Int64
}

// NewBuilder creates a builder. Missing references are reported by
// each build, not here, so a partially configured builder can still be
// inspected.
func NewBuilder(config Config) *Builder {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{config: config, logger: logger}
}

// PackageID returns the configured access package.
func (b *Builder) PackageID() address.Address {
	return b.config.PackageID
}

// DeprecationCount returns how many deprecated-mode builds this
// builder has performed.
func (b *Builder) DeprecationCount() int64 {
	return b.deprecations.Load()
}

func (b *Builder) checkReferences(needClock bool) error {
	var missing []string
	if b.config.PackageID.IsZero() {
		missing = append(missing, "package")
	}
	if b.config.RegistryID.IsZero() {
		missing = append(missing, "registry")
	}
	if needClock && b.config.ClockID.IsZero() {
		missing = append(missing, "clock")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfiguration, missing)
	}
	return nil
}

func (b *Builder) transaction(sender address.Address, function string, arguments ...ledger.Argument) *Transaction {
	return &Transaction{
		Version: TransactionVersion,
		Sender:  sender,
		Calls: []ledger.MoveCall{{
			Package:   b.config.PackageID,
			Module:    Module,
			Function:  function,
			Arguments: arguments,
		}},
	}
}

// Build returns the access predicate transaction for contentIdentity
// and requestor. contentIdentity starts with the 32-byte address the
// content is encrypted under; anything after it is an opaque nonce.
// scope is ignored in legacy mode.
func (b *Builder) Build(contentIdentity []byte, requestor Requestor, scope grant.Scope) (*Transaction, error) {
	if len(contentIdentity) == 0 {
		return nil, fmt.Errorf("%w: content identity", ErrMissingConfiguration)
	}
	if err := b.checkReferences(true); err != nil {
		return nil, err
	}
	if len(contentIdentity) < address.Length {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrInvalidContentIdentity, len(contentIdentity), address.Length)
	}
	if err := requestor.Validate(); err != nil {
		return nil, err
	}
	if requestor.Mode != ModeLegacy && !scope.Valid() {
		return nil, fmt.Errorf("%w: scope %s", ErrInvalidRequestor, scope)
	}

	registry := ledger.ObjectRef(b.config.RegistryID)
	clock := ledger.ObjectRef(b.config.ClockID)
	identity := pureBytes(contentIdentity)

	var transaction *Transaction
	switch requestor.Mode {
	case ModeLegacy:
		transaction = b.transaction(requestor.User, FunctionSealApprove, identity, registry, clock)
	case ModeWallet:
		transaction = b.transaction(requestor.Wallet, FunctionSealApproveWallet,
			identity, pureAddress(requestor.Wallet), pureU8(uint8(scope)), registry, clock)
	case ModeApp:
		transaction = b.transaction(requestor.User, FunctionSealApproveApp,
			identity, pureString(requestor.AppID), pureU8(uint8(scope)), registry, clock)
	}

	if requestor.Mode.Deprecated() {
		b.deprecated(requestor, transaction.Calls[0].Function)
	}
	return transaction, nil
}

func (b *Builder) deprecated(requestor Requestor, function string) {
	b.deprecations.Add(1)
	notice := Notice{
		Mode:      requestor.Mode,
		Function:  function,
		Requestor: requestor.String(),
		Message:   fmt.Sprintf("%s authorization mode is deprecated; grant the requesting wallet and use wallet mode", requestor.Mode),
	}
	b.logger.Warn("deprecated authorization mode",
		"mode", requestor.Mode.String(),
		"function", function,
		"requestor", notice.Requestor,
	)
	if b.config.OnDeprecated != nil {
		b.config.OnDeprecated(notice)
	}
}

// BuildGrant returns the grant_access transaction for g, sent by
// g.GrantedBy. The ledger stamps the grant time from its clock.
func (b *Builder) BuildGrant(g grant.AccessGrant) (*Transaction, error) {
	if err := b.checkReferences(true); err != nil {
		return nil, err
	}
	if g.ContentIdentity.IsZero() || g.GrantedBy.IsZero() || g.Grantee == "" {
		return nil, fmt.Errorf("%w: grant content, grantor and grantee", ErrMissingConfiguration)
	}
	if !g.Scope.Valid() || g.ExpiresAt <= 0 {
		return nil, fmt.Errorf("%w: scope %s, expires_at %d", grant.ErrInvalidGrant, g.Scope, g.ExpiresAt)
	}
	return b.transaction(g.GrantedBy, FunctionGrantAccess,
		ledger.ObjectRef(b.config.RegistryID),
		pureBytes(g.ID[:]),
		pureAddress(g.ContentIdentity),
		pureString(g.Grantee),
		pureU8(uint8(g.Kind)),
		pureU8(uint8(g.Scope)),
		pureU64(uint64(g.ExpiresAt)),
		ledger.ObjectRef(b.config.ClockID),
	), nil
}

// BuildRevoke returns the revoke_access transaction revoking every
// grant to grantee over content, sent by actor.
func (b *Builder) BuildRevoke(actor, content address.Address, grantee string) (*Transaction, error) {
	if err := b.checkReferences(true); err != nil {
		return nil, err
	}
	if actor.IsZero() || content.IsZero() || grantee == "" {
		return nil, fmt.Errorf("%w: revoke actor, content and grantee", ErrMissingConfiguration)
	}
	return b.transaction(actor, FunctionRevokeAccess,
		ledger.ObjectRef(b.config.RegistryID),
		pureAddress(content),
		pureString(grantee),
		ledger.ObjectRef(b.config.ClockID),
	), nil
}

// BuildRegisterContext returns the register_context_wallet transaction
// recording wallet under its master, sent by the master.
func (b *Builder) BuildRegisterContext(wallet derivation.ContextWallet) (*Transaction, error) {
	if err := b.checkReferences(false); err != nil {
		return nil, err
	}
	if wallet.Master.IsZero() || wallet.Address.IsZero() {
		return nil, fmt.Errorf("%w: context wallet master and address", ErrMissingConfiguration)
	}
	return b.transaction(wallet.Master, FunctionRegisterContext,
		ledger.ObjectRef(b.config.RegistryID),
		pureAddress(wallet.Master),
		pureU64(wallet.Index),
		pureAddress(wallet.Address),
		pureString(wallet.AppHint),
	), nil
}
