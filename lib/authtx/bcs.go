// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fardream/go-bcs/bcs"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// Pure arguments use the ledger's canonical binary encoding (BCS):
// fixed-width little-endian integers, raw 32-byte addresses, and
// ULEB128 length-prefixed vectors and strings.

// ErrInvalidArgument is returned when a pure argument does not decode
// as the expected type.
var ErrInvalidArgument = errors.New("authtx: invalid argument")

// encodePure serializes value as a pure argument. Only the fixed set
// of Go types below is ever passed, so an error is a programming bug.
func encodePure(value any) ledger.Argument {
	encoded, err := bcs.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("authtx: encoding %T: %v", value, err))
	}
	return ledger.Pure(encoded)
}

func pureBytes(value []byte) ledger.Argument {
	if value == nil {
		value = []byte{}
	}
	return encodePure(value)
}

func pureString(value string) ledger.Argument {
	return encodePure(value)
}

func pureAddress(value address.Address) ledger.Argument {
	return ledger.Pure(value.Bytes())
}

func pureU8(value uint8) ledger.Argument {
	return encodePure(value)
}

func pureU64(value uint64) ledger.Argument {
	return encodePure(value)
}

// decodePure decodes all of argument's value into target.
func decodePure(argument ledger.Argument, target any, kind string) error {
	value, err := pure(argument)
	if err != nil {
		return err
	}
	consumed, err := bcs.Unmarshal(value, target)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidArgument, kind, err)
	}
	if consumed != len(value) {
		return fmt.Errorf("%w: %s has %d trailing bytes", ErrInvalidArgument, kind, len(value)-consumed)
	}
	return nil
}

func pure(argument ledger.Argument) ([]byte, error) {
	if argument.Kind != ledger.ArgumentPure {
		return nil, fmt.Errorf("%w: expected pure argument, got %s", ErrInvalidArgument, argument.Kind)
	}
	return argument.Value, nil
}

// PureBytes decodes a vector<u8> argument.
func PureBytes(argument ledger.Argument) ([]byte, error) {
	var value []byte
	if err := decodePure(argument, &value, "vector<u8>"); err != nil {
		return nil, err
	}
	return value, nil
}

// PureString decodes a UTF-8 string argument.
func PureString(argument ledger.Argument) (string, error) {
	value, err := PureBytes(argument)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(value) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidArgument)
	}
	return string(value), nil
}

// PureAddress decodes an address argument.
func PureAddress(argument ledger.Argument) (address.Address, error) {
	value, err := pure(argument)
	if err != nil {
		return address.Zero, err
	}
	parsed, err := address.FromBytes(value)
	if err != nil {
		return address.Zero, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return parsed, nil
}

// PureU8 decodes a u8 argument.
func PureU8(argument ledger.Argument) (uint8, error) {
	var value uint8
	if err := decodePure(argument, &value, "u8"); err != nil {
		return 0, err
	}
	return value, nil
}

// PureU64 decodes a u64 argument.
func PureU64(argument ledger.Argument) (uint64, error) {
	var value uint64
	if err := decodePure(argument, &value, "u64"); err != nil {
		return 0, err
	}
	return value, nil
}
