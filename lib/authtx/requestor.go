// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/address"
)

// ErrInvalidRequestor is returned for a requestor whose mode and
// fields disagree.
var ErrInvalidRequestor = errors.New("authtx: invalid requestor")

// Mode selects the access predicate a transaction invokes.
type Mode uint8

const (
	ModeLegacy Mode = 1
	ModeWallet Mode = 2
	ModeApp    Mode = 3
)

// String returns "legacy", "wallet" or "app".
func (m Mode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeWallet:
		return "wallet"
	case ModeApp:
		return "app"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Deprecated reports whether building in this mode emits a [Notice].
func (m Mode) Deprecated() bool {
	return m == ModeLegacy || m == ModeApp
}

// Requestor describes who asks for decryption. Build one with
// [Legacy], [Wallet] or [App].
type Requestor struct {
	Mode Mode

	// User is the transaction sender in legacy and app modes.
	User address.Address

	// Wallet is the requesting wallet in wallet mode, and the sender.
	Wallet address.Address

	// AppID is the requesting app in app mode.
	AppID string
}

// Legacy returns an owner-only requestor.
func Legacy(user address.Address) Requestor {
	return Requestor{Mode: ModeLegacy, User: user}
}

// Wallet returns a wallet-allowlist requestor.
func Wallet(wallet address.Address) Requestor {
	return Requestor{Mode: ModeWallet, Wallet: wallet}
}

// App returns an app-ID requestor acting for user.
func App(user address.Address, appID string) Requestor {
	return Requestor{Mode: ModeApp, User: user, AppID: appID}
}

// Sender returns the address that must send, and sign the session for,
// the transaction.
func (r Requestor) Sender() address.Address {
	if r.Mode == ModeWallet {
		return r.Wallet
	}
	return r.User
}

// Validate checks that the fields required by the mode are present.
func (r Requestor) Validate() error {
	switch r.Mode {
	case ModeLegacy:
		if r.User.IsZero() {
			return fmt.Errorf("%w: legacy mode needs a user address", ErrInvalidRequestor)
		}
	case ModeWallet:
		if r.Wallet.IsZero() {
			return fmt.Errorf("%w: wallet mode needs a wallet address", ErrInvalidRequestor)
		}
	case ModeApp:
		if r.User.IsZero() || r.AppID == "" {
			return fmt.Errorf("%w: app mode needs a user address and an app ID", ErrInvalidRequestor)
		}
	default:
		return fmt.Errorf("%w: mode %s", ErrInvalidRequestor, r.Mode)
	}
	return nil
}

// String describes the requestor for logs.
func (r Requestor) String() string {
	switch r.Mode {
	case ModeWallet:
		return "wallet:" + r.Wallet.String()
	case ModeApp:
		return "app:" + r.AppID + "@" + r.User.String()
	default:
		return r.Mode.String() + ":" + r.User.String()
	}
}
