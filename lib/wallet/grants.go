// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wallet

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// GrantRequest describes a grant to create.
type GrantRequest struct {
	// Content is the identity the shared content is encrypted under.
	Content address.Address

	// Grantee is a wallet address (Kind wallet) or an app ID (Kind
	// app).
	Grantee string
	Kind    grant.GranteeKind

	Scope     grant.Scope
	ExpiresAt time.Time

	// GrantedBy is the content owner or an admin grantee. It sends
	// the transaction.
	GrantedBy address.Address
}

// Refresh reloads the grants and context wallets owner holds on the
// ledger into the local view. Without a ledger it does nothing.
//
// A context wallet object only transfers ownership when it names owner
// as its master, derives from the master's salt when the client holds
// that salt, and does not take over content that already has an
// owner. Objects failing these checks are logged and skipped.
func (c *Client) Refresh(ctx context.Context, owner address.Address) error {
	if c.ledger == nil {
		return nil
	}
	ctx, cancel := withTimeout(ctx, c.timeouts.Ledger)
	defer cancel()

	objects, err := c.ledger.OwnedObjects(ctx, owner, derivation.TypeTag)
	if err != nil {
		return ledgerError(ctx, err)
	}
	for _, object := range objects {
		wallet, err := decodeContextWallet(object)
		if err != nil {
			return err
		}
		if err := c.trustContextWallet(owner, wallet); err != nil {
			c.logger.Warn("ignoring context wallet object",
				"object", object.ID.String(),
				"wallet", wallet.Address.String(),
				"master", wallet.Master.String(),
				"error", err,
			)
		}
	}
	if _, err := c.grants.LoadFromLedger(ctx, c.ledger, owner); err != nil {
		return ledgerError(ctx, err)
	}
	return nil
}

// GrantAccess validates request against the current grants over the
// content and returns the unsigned grant_access transaction together
// with the grant it creates. The ledger stamps the final grant time.
func (c *Client) GrantAccess(ctx context.Context, request GrantRequest) (*authtx.Transaction, grant.AccessGrant, error) {
	owner := c.grants.Owner(request.Content)
	if err := c.Refresh(ctx, owner); err != nil {
		return nil, grant.AccessGrant{}, err
	}
	now := c.clock.Now()
	candidate := grant.New(request.Content, request.Grantee, request.Kind, request.Scope,
		request.GrantedBy, now, request.ExpiresAt)
	if err := grant.ValidateNewGrant(c.grants.Grants(request.Content), candidate, c.grants.Owner(request.Content), now); err != nil {
		return nil, grant.AccessGrant{}, err
	}
	transaction, err := c.builder.BuildGrant(candidate)
	if err != nil {
		return nil, grant.AccessGrant{}, err
	}
	return transaction, candidate, nil
}

// RevokeAccess checks that actor may revoke grants over content and
// returns the unsigned revoke_access transaction revoking every grant
// to grantee.
func (c *Client) RevokeAccess(ctx context.Context, actor, content address.Address, grantee string) (*authtx.Transaction, error) {
	owner := c.grants.Owner(content)
	if err := c.Refresh(ctx, owner); err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if err := grant.CanRevoke(c.grants.Grants(content), actor, c.grants.Owner(content), content, now); err != nil {
		return nil, err
	}
	return c.builder.BuildRevoke(actor, content, grantee)
}

// RegisterContext derives the context wallet for appHint under master
// and returns it with its unsigned registration transaction. master
// must have a record in the client's registry.
func (c *Client) RegisterContext(master address.Address, appHint string) (derivation.ContextWallet, *authtx.Transaction, error) {
	wallet, err := c.registry.Register(master, appHint)
	if err != nil {
		return derivation.ContextWallet{}, nil, err
	}
	transaction, err := c.builder.BuildRegisterContext(wallet)
	if err != nil {
		return derivation.ContextWallet{}, nil, err
	}
	if err := c.grants.SetOwner(wallet.Address, master); err != nil {
		return derivation.ContextWallet{}, nil, err
	}
	return wallet, transaction, nil
}

// trustContextWallet applies a context wallet read from the ledger to
// the grant index.
func (c *Client) trustContextWallet(owner address.Address, wallet derivation.ContextWallet) error {
	if wallet.Master != owner {
		return fmt.Errorf("wallet: object owned by %s names master %s", owner, wallet.Master)
	}
	if err := c.registry.Verify(wallet); err != nil && !errors.Is(err, derivation.ErrMissingSalt) {
		return err
	}
	return c.grants.SetOwner(wallet.Address, wallet.Master)
}

// AddMaster makes record available to [Client.RegisterContext] and
// restores the context wallets already registered under it on the
// ledger, so new registrations continue at the next index. It returns
// the number of wallets restored.
func (c *Client) AddMaster(ctx context.Context, record *derivation.MasterRecord) (int, error) {
	c.registry.AddMaster(record)
	if c.ledger == nil {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx, c.timeouts.Ledger)
	defer cancel()

	objects, err := c.ledger.OwnedObjects(ctx, record.Master, derivation.TypeTag)
	if err != nil {
		return 0, ledgerError(ctx, err)
	}
	wallets := make([]derivation.ContextWallet, 0, len(objects))
	for _, object := range objects {
		wallet, err := decodeContextWallet(object)
		if err != nil {
			return 0, err
		}
		wallets = append(wallets, wallet)
	}
	slices.SortFunc(wallets, func(a, b derivation.ContextWallet) int {
		return cmp.Compare(a.Index, b.Index)
	})

	known := uint64(len(c.registry.Wallets(record.Master)))
	restored := 0
	for _, wallet := range wallets {
		if wallet.Index < known {
			continue
		}
		if err := c.registry.Restore(wallet); err != nil {
			return restored, err
		}
		if err := c.grants.SetOwner(wallet.Address, wallet.Master); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// Submit signs and executes transaction on the ledger. A transaction
// the ledger executes but whose call fails is returned with
// StatusFailure and no error. Submission is never retried.
func (c *Client) Submit(ctx context.Context, transaction *authtx.Transaction, sign signer.Signer) (*ledger.SubmitResult, error) {
	if c.ledger == nil {
		return nil, errors.New("wallet: no ledger configured")
	}
	data, err := transaction.Bytes()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, c.timeouts.Ledger)
	defer cancel()

	result, err := c.ledger.Submit(ctx, data, sign)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ledgerError(ctx, err)
		}
		return nil, err
	}
	c.logger.Info("transaction submitted",
		"digest", result.Digest,
		"status", string(result.Status),
		"sender", transaction.Sender.String(),
	)
	return result, nil
}
