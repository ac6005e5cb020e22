// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/signer"
)

// KeyParams is embedded by commands that sign with a wallet key.
type KeyParams struct {
	KeyPath string `flag:"key,k" desc:"wallet signing key file written by 'pdw keygen'"`
}

// LoadSigner reads the key named by --key. The caller closes it.
func (p *KeyParams) LoadSigner() (*signer.Ed25519, error) {
	if p.KeyPath == "" {
		return nil, errors.New("--key is required")
	}
	loaded, err := signer.Load(p.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading key: %w", err)
	}
	return loaded, nil
}

// ParseAddress parses a 0x-prefixed address argument, naming flag in
// errors.
func ParseAddress(flag, text string) (address.Address, error) {
	if text == "" {
		return address.Zero, fmt.Errorf("--%s is required", flag)
	}
	parsed, err := address.Parse(text)
	if err != nil {
		return address.Zero, fmt.Errorf("--%s: %w", flag, err)
	}
	return parsed, nil
}
