// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger defines the narrow view of the ledger that the wallet
// core depends on: reading owned objects, building Move calls,
// submitting signed transactions, and dry-running transactions to
// evaluate access predicates.
//
// The package holds only types and the [Client] interface. The
// memledger subpackage provides an in-process implementation with the
// reference semantics of the access module.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/signer"
)

var (
	// ErrInvalidTarget is returned for a Move call target that is not
	// "<package>::<module>::<function>".
	ErrInvalidTarget = errors.New("ledger: invalid call target")

	// ErrRejected is returned by Submit when the ledger refuses a
	// transaction before execution (bad sender, bad encoding).
	ErrRejected = errors.New("ledger: transaction rejected")
)

// Object is a ledger object as returned by [Client.OwnedObjects].
// Content is the object's CBOR-encoded fields.
type Object struct {
	ID      address.Address `cbor:"1,keyasint"`
	Type    string          `cbor:"2,keyasint"`
	Owner   address.Address `cbor:"3,keyasint"`
	Version uint64          `cbor:"4,keyasint"`
	Content []byte          `cbor:"5,keyasint"`
}

// ArgumentKind distinguishes pure values from object references.
type ArgumentKind uint8

const (
	// ArgumentPure is a serialized value.
	ArgumentPure ArgumentKind = 1

	// ArgumentObject is a 32-byte object ID.
	ArgumentObject ArgumentKind = 2
)

// String returns "pure" or "object".
func (k ArgumentKind) String() string {
	switch k {
	case ArgumentPure:
		return "pure"
	case ArgumentObject:
		return "object"
	default:
		return fmt.Sprintf("ArgumentKind(%d)", uint8(k))
	}
}

// Argument is one input to a Move call.
type Argument struct {
	Kind  ArgumentKind `cbor:"1,keyasint"`
	Value []byte       `cbor:"2,keyasint"`
}

// Pure wraps serialized bytes as a pure argument.
func Pure(value []byte) Argument {
	return Argument{Kind: ArgumentPure, Value: value}
}

// ObjectRef references a shared or owned object by ID.
func ObjectRef(id address.Address) Argument {
	return Argument{Kind: ArgumentObject, Value: id.Bytes()}
}

// ObjectID returns the referenced object ID, or an error if the
// argument is not an object reference.
func (a Argument) ObjectID() (address.Address, error) {
	if a.Kind != ArgumentObject {
		return address.Zero, fmt.Errorf("ledger: argument is %s, not object", a.Kind)
	}
	return address.FromBytes(a.Value)
}

// MoveCall is a single function invocation on a published package.
type MoveCall struct {
	Package   address.Address `cbor:"1,keyasint"`
	Module    string          `cbor:"2,keyasint"`
	Function  string          `cbor:"3,keyasint"`
	Arguments []Argument      `cbor:"4,keyasint"`
}

// Target returns "<package>::<module>::<function>".
func (c MoveCall) Target() string {
	return c.Package.String() + "::" + c.Module + "::" + c.Function
}

// ParseTarget splits a call target into its parts.
func ParseTarget(target string) (address.Address, string, string, error) {
	parts := strings.Split(target, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return address.Zero, "", "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	pkg, err := address.Parse(parts[0])
	if err != nil {
		return address.Zero, "", "", fmt.Errorf("%w: %q: %w", ErrInvalidTarget, target, err)
	}
	return pkg, parts[1], parts[2], nil
}

// TransactionHandle is an unsigned, single-call programmable
// transaction under construction.
type TransactionHandle struct {
	Call MoveCall
}

// Status is the execution outcome of a transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// SubmitResult describes an executed transaction.
type SubmitResult struct {
	Digest  string
	Status  Status
	Effects []string
	Error   string
}

// DryRunResult describes a transaction evaluated without committing.
// Key servers release key shares only when Status is StatusSuccess.
type DryRunResult struct {
	Status Status
	Error  string
}

// Client is the ledger capability the wallet core consumes.
type Client interface {
	// OwnedObjects returns every object of typeTag owned by owner.
	OwnedObjects(ctx context.Context, owner address.Address, typeTag string) ([]Object, error)

	// BuildMoveCall validates target and arguments and returns an
	// unsigned transaction handle.
	BuildMoveCall(target string, arguments []Argument) (*TransactionHandle, error)

	// Submit signs and executes encoded transaction bytes.
	Submit(ctx context.Context, transaction []byte, signer signer.Signer) (*SubmitResult, error)

	// DryRun evaluates encoded transaction bytes without committing
	// any state change.
	DryRun(ctx context.Context, transaction []byte) (*DryRunResult, error)
}
