// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package address defines the 32-byte account identifier shared by
// master identities, context wallets, ledger objects and packages.
//
// The canonical text form is "0x" followed by 64 lowercase hex digits.
// [Parse] is lenient about case and about short forms: "0xA" is the
// same address as "0x000...00a", matching how ledger tooling prints
// system object IDs.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Length is the size of an address in bytes.
const Length = 32

// ErrInvalidFormat is returned when a string or byte slice is not a
// well-formed address.
var ErrInvalidFormat = errors.New("address: invalid format")

// Address is a 32-byte account or object identifier. The zero value is
// the zero address, which [Address.IsZero] reports.
type Address [Length]byte

// Zero is the all-zero address.
var Zero Address

// Parse decodes an address from its hex form. The "0x" prefix is
// required. Up to 64 hex digits are accepted and left-padded with
// zeros.
func Parse(text string) (Address, error) {
	var result Address
	digits, found := strings.CutPrefix(text, "0x")
	if !found {
		digits, found = strings.CutPrefix(text, "0X")
	}
	if !found {
		return result, fmt.Errorf("%w: %q lacks 0x prefix", ErrInvalidFormat, text)
	}
	if len(digits) == 0 || len(digits) > 2*Length {
		return result, fmt.Errorf("%w: %q must have 1 to %d hex digits", ErrInvalidFormat, text, 2*Length)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	decoded, err := hex.DecodeString(digits)
	if err != nil {
		return result, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, text, err)
	}
	copy(result[Length-len(decoded):], decoded)
	return result, nil
}

// MustParse is like Parse but panics on error. Use it for constants
// and tests.
func MustParse(text string) Address {
	result, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return result
}

// FromBytes copies a 32-byte slice into an Address.
func FromBytes(data []byte) (Address, error) {
	var result Address
	if len(data) != Length {
		return result, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFormat, len(data), Length)
	}
	copy(result[:], data)
	return result, nil
}

// FromEd25519 returns the address controlled by an Ed25519 public key:
// blake2b-256 over the scheme flag byte (0x00) followed by the key.
func FromEd25519(publicKey []byte) Address {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		panic("address: blake2b-256 init: " + err.Error())
	}
	hasher.Write([]byte{0x00})
	hasher.Write(publicKey)
	var result Address
	copy(result[:], hasher.Sum(nil))
	return result
}

// String returns the canonical "0x"-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for log lines: "0x" plus the first
// four and last four hex digits.
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	return "0x" + full[:4] + ".." + full[len(full)-4:]
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	result := make([]byte, Length)
	copy(result, a[:])
	return result
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// MarshalText implements [encoding.TextMarshaler]. CBOR and JSON both
// encode addresses in canonical text form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
