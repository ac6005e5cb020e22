// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// ContentAddress returns the address a content identity is encrypted
// under: its first 32 bytes.
func ContentAddress(contentIdentity []byte) (address.Address, error) {
	if len(contentIdentity) < address.Length {
		return address.Zero, fmt.Errorf("%w: %d bytes", ErrInvalidContentIdentity, len(contentIdentity))
	}
	return address.FromBytes(contentIdentity[:address.Length])
}

// IsApproval reports whether function is one of the seal_approve
// predicates.
func IsApproval(function string) bool {
	return strings.HasPrefix(function, FunctionSealApprove)
}

// Approval is a parsed seal_approve* call.
type Approval struct {
	Mode     Mode
	Identity []byte
	Content  address.Address
	Wallet   address.Address
	AppID    string
	Scope    grant.Scope
	Registry address.Address
	Clock    address.Address
}

func expectArguments(call ledger.MoveCall, count int) error {
	if len(call.Arguments) != count {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidTransaction, call.Function, count, len(call.Arguments))
	}
	return nil
}

// ParseApproval decodes the arguments of a seal_approve* call.
func ParseApproval(call ledger.MoveCall) (*Approval, error) {
	if call.Module != Module {
		return nil, fmt.Errorf("%w: module %q", ErrInvalidTransaction, call.Module)
	}

	var (
		approval Approval
		rest     []ledger.Argument
		err      error
	)
	switch call.Function {
	case FunctionSealApprove:
		if err := expectArguments(call, 3); err != nil {
			return nil, err
		}
		approval.Mode = ModeLegacy
		rest = call.Arguments[1:]
	case FunctionSealApproveWallet:
		if err := expectArguments(call, 5); err != nil {
			return nil, err
		}
		approval.Mode = ModeWallet
		if approval.Wallet, err = PureAddress(call.Arguments[1]); err != nil {
			return nil, err
		}
		rest = call.Arguments[3:]
	case FunctionSealApproveApp:
		if err := expectArguments(call, 5); err != nil {
			return nil, err
		}
		approval.Mode = ModeApp
		if approval.AppID, err = PureString(call.Arguments[1]); err != nil {
			return nil, err
		}
		rest = call.Arguments[3:]
	default:
		return nil, fmt.Errorf("%w: %s is not an access predicate", ErrInvalidTransaction, call.Function)
	}

	if approval.Identity, err = PureBytes(call.Arguments[0]); err != nil {
		return nil, err
	}
	if approval.Content, err = ContentAddress(approval.Identity); err != nil {
		return nil, err
	}
	if approval.Mode != ModeLegacy {
		scope, err := PureU8(call.Arguments[2])
		if err != nil {
			return nil, err
		}
		approval.Scope = grant.Scope(scope)
		if !approval.Scope.Valid() {
			return nil, fmt.Errorf("%w: scope %d", ErrInvalidArgument, scope)
		}
	}
	if approval.Registry, err = rest[0].ObjectID(); err != nil {
		return nil, err
	}
	if approval.Clock, err = rest[1].ObjectID(); err != nil {
		return nil, err
	}
	return &approval, nil
}

// GrantCall is a parsed grant_access call.
type GrantCall struct {
	Registry  address.Address
	ID        uuid.UUID
	Content   address.Address
	Grantee   string
	Kind      grant.GranteeKind
	Scope     grant.Scope
	ExpiresAt int64
	Clock     address.Address
}

// ParseGrant decodes the arguments of a grant_access call.
func ParseGrant(call ledger.MoveCall) (*GrantCall, error) {
	if call.Function != FunctionGrantAccess {
		return nil, fmt.Errorf("%w: %s is not %s", ErrInvalidTransaction, call.Function, FunctionGrantAccess)
	}
	if err := expectArguments(call, 8); err != nil {
		return nil, err
	}
	var (
		parsed GrantCall
		err    error
	)
	if parsed.Registry, err = call.Arguments[0].ObjectID(); err != nil {
		return nil, err
	}
	id, err := PureBytes(call.Arguments[1])
	if err != nil {
		return nil, err
	}
	if parsed.ID, err = uuid.FromBytes(id); err != nil {
		return nil, fmt.Errorf("%w: grant id: %w", ErrInvalidArgument, err)
	}
	if parsed.Content, err = PureAddress(call.Arguments[2]); err != nil {
		return nil, err
	}
	if parsed.Grantee, err = PureString(call.Arguments[3]); err != nil {
		return nil, err
	}
	kind, err := PureU8(call.Arguments[4])
	if err != nil {
		return nil, err
	}
	parsed.Kind = grant.GranteeKind(kind)
	scope, err := PureU8(call.Arguments[5])
	if err != nil {
		return nil, err
	}
	parsed.Scope = grant.Scope(scope)
	expiresAt, err := PureU64(call.Arguments[6])
	if err != nil {
		return nil, err
	}
	parsed.ExpiresAt = int64(expiresAt)
	if parsed.Clock, err = call.Arguments[7].ObjectID(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// RevokeCall is a parsed revoke_access call.
type RevokeCall struct {
	Registry address.Address
	Content  address.Address
	Grantee  string
	Clock    address.Address
}

// ParseRevoke decodes the arguments of a revoke_access call.
func ParseRevoke(call ledger.MoveCall) (*RevokeCall, error) {
	if call.Function != FunctionRevokeAccess {
		return nil, fmt.Errorf("%w: %s is not %s", ErrInvalidTransaction, call.Function, FunctionRevokeAccess)
	}
	if err := expectArguments(call, 4); err != nil {
		return nil, err
	}
	var (
		parsed RevokeCall
		err    error
	)
	if parsed.Registry, err = call.Arguments[0].ObjectID(); err != nil {
		return nil, err
	}
	if parsed.Content, err = PureAddress(call.Arguments[1]); err != nil {
		return nil, err
	}
	if parsed.Grantee, err = PureString(call.Arguments[2]); err != nil {
		return nil, err
	}
	if parsed.Clock, err = call.Arguments[3].ObjectID(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseRegisterContext decodes a register_context_wallet call. The
// returned wallet has no CreatedAt; the ledger stamps it.
func ParseRegisterContext(call ledger.MoveCall) (address.Address, derivation.ContextWallet, error) {
	var wallet derivation.ContextWallet
	if call.Function != FunctionRegisterContext {
		return address.Zero, wallet, fmt.Errorf("%w: %s is not %s", ErrInvalidTransaction, call.Function, FunctionRegisterContext)
	}
	if err := expectArguments(call, 5); err != nil {
		return address.Zero, wallet, err
	}
	registry, err := call.Arguments[0].ObjectID()
	if err != nil {
		return address.Zero, wallet, err
	}
	if wallet.Master, err = PureAddress(call.Arguments[1]); err != nil {
		return address.Zero, wallet, err
	}
	if wallet.Index, err = PureU64(call.Arguments[2]); err != nil {
		return address.Zero, wallet, err
	}
	if wallet.Address, err = PureAddress(call.Arguments[3]); err != nil {
		return address.Zero, wallet, err
	}
	if wallet.AppHint, err = PureString(call.Arguments[4]); err != nil {
		return address.Zero, wallet, err
	}
	return registry, wallet, nil
}
