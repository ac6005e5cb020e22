// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memledger is an in-process [ledger.Client] that executes the
// access module: it stores grant and context-wallet objects, applies
// grant_access, revoke_access and register_context_wallet, and
// evaluates the seal_approve predicates on dry run.
//
// It is the ledger behind the CLI's local mode and behind the
// end-to-end tests. State can be snapshotted to a file with
// [Ledger.Save] and restored with [Load].
package memledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// ContextWalletType is the ledger type of context-wallet registration
// objects.
const ContextWalletType = derivation.TypeTag

// ErrReplay is returned by Submit for a state-changing transaction
// whose exact bytes were already executed.
var ErrReplay = errors.New("memledger: transaction already executed")

// Config configures a [Ledger].
type Config struct {
	// PackageID, RegistryID and ClockID are the references every
	// access transaction must carry.
	PackageID  address.Address
	RegistryID address.Address
	ClockID    address.Address

	// Clock is the ledger's clock object. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives execution events. Nil discards them.
	Logger *slog.Logger
}

// Ledger is an in-memory ledger. It is safe for concurrent use.
type Ledger struct {
	packageID  address.Address
	registryID address.Address
	clockID    address.Address
	clock      clock.Clock
	logger     *slog.Logger

	// grants has its own lock. mu serializes execution so each
	// transaction sees and leaves a consistent grants/objects pair.
	grants *grant.Index

	mu sync.Mutex

	objects      map[address.Address]*ledger.Object
	grantObjects map[uuid.UUID]address.Address

	// contexts maps a registered context wallet to its record.
	contexts map[address.Address]derivation.ContextWallet

	// accounts holds every address that has signed a transaction.
	// Such an address belongs to a key holder and can never become a
	// context wallet.
	accounts map[address.Address]bool

	executed map[contenthash.Hash]bool
}

// New creates an empty ledger.
func New(config Config) *Ledger {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{
		packageID:    config.PackageID,
		registryID:   config.RegistryID,
		clockID:      config.ClockID,
		clock:        clock.OrReal(config.Clock),
		logger:       logger,
		grants:       grant.NewIndex(),
		objects:      make(map[address.Address]*ledger.Object),
		grantObjects: make(map[uuid.UUID]address.Address),
		contexts:     make(map[address.Address]derivation.ContextWallet),
		accounts:     make(map[address.Address]bool),
		executed:     make(map[contenthash.Hash]bool),
	}
}

// Grants returns every grant over content, as the registry holds them.
func (l *Ledger) Grants(content address.Address) []grant.AccessGrant {
	return l.grants.Grants(content)
}

// Owner returns the owner of content: the master of a registered
// context wallet, or content itself.
func (l *Ledger) Owner(content address.Address) address.Address {
	return l.grants.Owner(content)
}

// typeMatches accepts a bare "module::Type" tag or one qualified with
// this ledger's package.
func (l *Ledger) typeMatches(objectType, requested string) bool {
	return requested == objectType || requested == l.packageID.String()+"::"+objectType
}

// OwnedObjects returns every object of typeTag owned by owner, sorted
// by object ID.
func (l *Ledger) OwnedObjects(ctx context.Context, owner address.Address, typeTag string) ([]ledger.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []ledger.Object
	for _, object := range l.objects {
		if object.Owner != owner || !l.typeMatches(object.Type, typeTag) {
			continue
		}
		copied := *object
		copied.Content = slices.Clone(object.Content)
		result = append(result, copied)
	}
	slices.SortFunc(result, func(a, b ledger.Object) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return result, nil
}

// BuildMoveCall checks that target names an access module function of
// this ledger's package and that every argument is well formed.
func (l *Ledger) BuildMoveCall(target string, arguments []ledger.Argument) (*ledger.TransactionHandle, error) {
	pkg, module, function, err := ledger.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if pkg != l.packageID {
		return nil, fmt.Errorf("%w: unknown package %s", ledger.ErrInvalidTarget, pkg)
	}
	if module != authtx.Module {
		return nil, fmt.Errorf("%w: unknown module %q", ledger.ErrInvalidTarget, module)
	}
	switch function {
	case authtx.FunctionSealApprove, authtx.FunctionSealApproveWallet, authtx.FunctionSealApproveApp,
		authtx.FunctionGrantAccess, authtx.FunctionRevokeAccess, authtx.FunctionRegisterContext:
	default:
		return nil, fmt.Errorf("%w: unknown function %q", ledger.ErrInvalidTarget, function)
	}
	for position, argument := range arguments {
		switch argument.Kind {
		case ledger.ArgumentPure:
		case ledger.ArgumentObject:
			if _, err := argument.ObjectID(); err != nil {
				return nil, fmt.Errorf("%w: argument %d: %w", ledger.ErrInvalidTarget, position, err)
			}
		default:
			return nil, fmt.Errorf("%w: argument %d has kind %s", ledger.ErrInvalidTarget, position, argument.Kind)
		}
	}
	return &ledger.TransactionHandle{Call: ledger.MoveCall{
		Package:   pkg,
		Module:    module,
		Function:  function,
		Arguments: slices.Clone(arguments),
	}}, nil
}

// decode parses transaction bytes and returns its single call after
// checking the package.
func (l *Ledger) decode(data []byte) (*authtx.Transaction, ledger.MoveCall, error) {
	transaction, err := authtx.Decode(data)
	if err != nil {
		return nil, ledger.MoveCall{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	call, err := transaction.Call()
	if err != nil {
		return nil, ledger.MoveCall{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if call.Package != l.packageID || call.Module != authtx.Module {
		return nil, ledger.MoveCall{}, fmt.Errorf("%w: call to %s", ledger.ErrRejected, call.Target())
	}
	return transaction, call, nil
}

// checkReferences verifies the shared objects a call passed.
func (l *Ledger) checkReferences(registry, clockID address.Address) error {
	if registry != l.registryID {
		return fmt.Errorf("unknown registry %s", registry)
	}
	if clockID != l.clockID {
		return fmt.Errorf("unknown clock %s", clockID)
	}
	return nil
}

// DryRun evaluates a seal_approve* transaction without changing state.
// A denied predicate is a StatusFailure result, not an error; errors
// are reserved for transactions that cannot be evaluated at all.
func (l *Ledger) DryRun(ctx context.Context, data []byte) (*ledger.DryRunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transaction, call, err := l.decode(data)
	if err != nil {
		return nil, err
	}
	if !authtx.IsApproval(call.Function) {
		return nil, fmt.Errorf("%w: dry run of %s: only access predicates are evaluated", ledger.ErrRejected, call.Function)
	}

	evaluation := l.approve(transaction.Sender, call)
	result := &ledger.DryRunResult{Status: ledger.StatusSuccess}
	if evaluation != nil {
		result.Status = ledger.StatusFailure
		result.Error = evaluation.Error()
	}
	l.logger.Debug("access predicate evaluated",
		"function", call.Function,
		"sender", transaction.Sender.String(),
		"status", string(result.Status),
		"error", result.Error,
	)
	return result, nil
}

// approve evaluates a seal_approve* call for sender. It returns nil
// when access is allowed and the abort reason otherwise.
func (l *Ledger) approve(sender address.Address, call ledger.MoveCall) error {
	approval, err := authtx.ParseApproval(call)
	if err != nil {
		return err
	}
	if err := l.checkReferences(approval.Registry, approval.Clock); err != nil {
		return err
	}
	now := l.clock.Now()
	owner := l.grants.Owner(approval.Content)

	switch approval.Mode {
	case authtx.ModeLegacy:
		if sender != owner && sender != approval.Content {
			return fmt.Errorf("no access: %s is not the owner of %s", sender, approval.Content)
		}
	case authtx.ModeWallet:
		if approval.Wallet != sender {
			return fmt.Errorf("no access: sender %s is not the requesting wallet %s", sender, approval.Wallet)
		}
		scope, ok := l.grants.EffectivePermission(approval.Wallet.String(), approval.Content, now)
		if !ok || !scope.Covers(approval.Scope) {
			return fmt.Errorf("no access: wallet %s holds no active %s grant over %s", approval.Wallet, approval.Scope, approval.Content)
		}
	case authtx.ModeApp:
		if sender != owner {
			return fmt.Errorf("no access: app requests must be sent by the owner of %s", approval.Content)
		}
		scope, ok := grant.EffectivePermission(l.grants.Grants(approval.Content), approval.AppID, approval.Content, now)
		if !ok || !scope.Covers(approval.Scope) {
			return fmt.Errorf("no access: app %q holds no active %s grant over %s", approval.AppID, approval.Scope, approval.Content)
		}
	}
	return nil
}

// Submit executes a transaction sent by sign. Transactions whose
// sender is not sign's address, or that do not decode, are rejected
// with an error wrapping [ledger.ErrRejected]. A transaction that
// executes but aborts returns a StatusFailure result.
func (l *Ledger) Submit(ctx context.Context, data []byte, sign signer.Signer) (*ledger.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transaction, call, err := l.decode(data)
	if err != nil {
		return nil, err
	}
	if sign.Address() != transaction.Sender {
		return nil, fmt.Errorf("%w: signer %s is not sender %s", ledger.ErrRejected, sign.Address(), transaction.Sender)
	}
	digest := contenthash.Transaction(data)
	signature, err := sign.SignPersonalMessage(ctx, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %w", ledger.ErrRejected, err)
	}
	if err := signer.Verify(transaction.Sender, digest[:], signature); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[transaction.Sender] = true

	result := &ledger.SubmitResult{Digest: digest.String(), Status: ledger.StatusSuccess}
	if authtx.IsApproval(call.Function) {
		if err := l.approve(transaction.Sender, call); err != nil {
			result.Status, result.Error = ledger.StatusFailure, err.Error()
		}
		return result, nil
	}

	if l.executed[digest] {
		return nil, fmt.Errorf("%w: %s", ErrReplay, digest)
	}
	now := l.clock.Now()
	var effects []string
	switch call.Function {
	case authtx.FunctionGrantAccess:
		effects, err = l.executeGrant(transaction.Sender, call, digest, now)
	case authtx.FunctionRevokeAccess:
		effects, err = l.executeRevoke(transaction.Sender, call, now)
	case authtx.FunctionRegisterContext:
		effects, err = l.executeRegister(transaction.Sender, call, digest, now)
	default:
		err = fmt.Errorf("unknown function %q", call.Function)
	}
	if err != nil {
		result.Status, result.Error = ledger.StatusFailure, err.Error()
	} else {
		result.Effects = effects
	}
	l.executed[digest] = true

	l.logger.Info("transaction executed",
		"digest", result.Digest,
		"function", call.Function,
		"sender", transaction.Sender.String(),
		"status", string(result.Status),
		"error", result.Error,
	)
	return result, nil
}

// objectID derives the ID of the position'th object created by the
// transaction with the given digest.
func objectID(digest contenthash.Hash, position byte) address.Address {
	return address.Address(contenthash.Transaction(append(digest[:], position)))
}

func (l *Ledger) executeGrant(sender address.Address, call ledger.MoveCall, digest contenthash.Hash, now time.Time) ([]string, error) {
	parsed, err := authtx.ParseGrant(call)
	if err != nil {
		return nil, err
	}
	if err := l.checkReferences(parsed.Registry, parsed.Clock); err != nil {
		return nil, err
	}
	if _, exists := l.grantObjects[parsed.ID]; exists {
		return nil, fmt.Errorf("grant %s already exists", parsed.ID)
	}
	created := grant.AccessGrant{
		ID:              parsed.ID,
		ContentIdentity: parsed.Content,
		Grantee:         parsed.Grantee,
		Kind:            parsed.Kind,
		Scope:           parsed.Scope,
		AccessLevel:     parsed.Scope.String(),
		GrantedBy:       sender,
		GrantedAt:       now.UnixMilli(),
		ExpiresAt:       parsed.ExpiresAt,
	}
	if err := l.grants.Add(created, now); err != nil {
		return nil, err
	}
	id := objectID(digest, 0)
	if err := l.putGrantObject(id, created, 1); err != nil {
		return nil, err
	}
	return []string{"created " + id.String()}, nil
}

func (l *Ledger) putGrantObject(id address.Address, g grant.AccessGrant, version uint64) error {
	content, err := grant.Encode(g)
	if err != nil {
		return err
	}
	l.objects[id] = &ledger.Object{
		ID:      id,
		Type:    grant.TypeTag,
		Owner:   l.grants.Owner(g.ContentIdentity),
		Version: version,
		Content: content,
	}
	l.grantObjects[g.ID] = id
	return nil
}

func (l *Ledger) executeRevoke(sender address.Address, call ledger.MoveCall, now time.Time) ([]string, error) {
	parsed, err := authtx.ParseRevoke(call)
	if err != nil {
		return nil, err
	}
	if err := l.checkReferences(parsed.Registry, parsed.Clock); err != nil {
		return nil, err
	}
	before := make(map[uuid.UUID]bool)
	for _, g := range l.grants.Grants(parsed.Content) {
		before[g.ID] = g.Revoked
	}
	if _, err := l.grants.Revoke(parsed.Content, parsed.Grantee, sender, now); err != nil {
		return nil, err
	}

	var effects []string
	for _, g := range l.grants.Grants(parsed.Content) {
		if !g.Revoked || before[g.ID] {
			continue
		}
		id := l.grantObjects[g.ID]
		if err := l.putGrantObject(id, g, l.objects[id].Version+1); err != nil {
			return nil, err
		}
		effects = append(effects, "mutated "+id.String())
	}
	return effects, nil
}

func (l *Ledger) executeRegister(sender address.Address, call ledger.MoveCall, digest contenthash.Hash, now time.Time) ([]string, error) {
	registry, wallet, err := authtx.ParseRegisterContext(call)
	if err != nil {
		return nil, err
	}
	if registry != l.registryID {
		return nil, fmt.Errorf("unknown registry %s", registry)
	}
	if wallet.Master != sender {
		return nil, fmt.Errorf("sender %s is not master %s", sender, wallet.Master)
	}
	if wallet.Address == wallet.Master {
		return nil, fmt.Errorf("context wallet %s is its own master", wallet.Address)
	}
	if existing, exists := l.contexts[wallet.Address]; exists {
		if existing.Master == wallet.Master && existing.Index == wallet.Index {
			return nil, nil
		}
		return nil, fmt.Errorf("context wallet %s is already registered to %s", wallet.Address, existing.Master)
	}
	for _, existing := range l.contexts {
		if existing.Master == wallet.Master && existing.Index == wallet.Index {
			return nil, fmt.Errorf("index %d of %s is already registered as %s", wallet.Index, wallet.Master, existing.Address)
		}
	}
	if reason := l.accountActivity(wallet.Address); reason != "" {
		return nil, fmt.Errorf("%s cannot be registered as a context wallet: %s", wallet.Address, reason)
	}

	wallet.CreatedAt = now.UnixMilli()
	content, err := codec.Marshal(wallet)
	if err != nil {
		return nil, err
	}
	if err := l.grants.SetOwner(wallet.Address, wallet.Master); err != nil {
		return nil, err
	}
	id := objectID(digest, 0)
	l.objects[id] = &ledger.Object{
		ID:      id,
		Type:    ContextWalletType,
		Owner:   wallet.Master,
		Version: 1,
		Content: content,
	}
	l.contexts[wallet.Address] = wallet
	return []string{"created " + id.String()}, nil
}

// accountActivity returns why candidate already acts as an account on
// this ledger, or "" when it has no footprint. Registering such an
// address would hand its content to another master.
func (l *Ledger) accountActivity(candidate address.Address) string {
	if l.accounts[candidate] {
		return "it has signed transactions"
	}
	for _, object := range l.objects {
		if object.Owner == candidate {
			return "it owns ledger objects"
		}
	}
	if len(l.grants.Grants(candidate)) > 0 {
		return "content under it already has grants"
	}
	return ""
}
