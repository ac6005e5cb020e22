// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package derivation

import (
	"crypto/rand"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/secret"
)

// SaltLength is the size of a freshly generated master salt.
const SaltLength = 32

// MasterRecord pairs a master identity with its derivation salt. The
// salt is held in protected memory; call Close when done.
type MasterRecord struct {
	Master address.Address
	salt   *secret.Buffer
}

// NewMasterRecord generates a random salt for master.
func NewMasterRecord(master address.Address) (*MasterRecord, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("derivation: generating salt: %w", err)
	}
	return RestoreMasterRecord(master, salt)
}

// RestoreMasterRecord wraps an existing salt. The salt slice is zeroed
// after being copied into protected memory.
func RestoreMasterRecord(master address.Address, salt []byte) (*MasterRecord, error) {
	if len(salt) == 0 {
		return nil, ErrMissingSalt
	}
	buffer, err := secret.NewFromBytes(salt)
	if err != nil {
		return nil, fmt.Errorf("derivation: %w", err)
	}
	return &MasterRecord{Master: master, salt: buffer}, nil
}

// LoadMasterRecord reads a hex salt file written by [MasterRecord.Save].
func LoadMasterRecord(master address.Address, path string) (*MasterRecord, error) {
	buffer, err := secret.ReadHexFile(path, SaltLength)
	if err != nil {
		return nil, err
	}
	return &MasterRecord{Master: master, salt: buffer}, nil
}

// Save writes the salt hex-encoded to path with 0600 permissions.
func (r *MasterRecord) Save(path string) error {
	return secret.WriteHexFile(path, r.salt.Bytes())
}

// DeriveForApp derives the context wallet address for appID.
func (r *MasterRecord) DeriveForApp(appID string) (address.Address, error) {
	return DeriveContextIdentity(r.Master, appID, r.salt.Bytes())
}

// DeriveAt derives the context wallet address at index.
func (r *MasterRecord) DeriveAt(index uint64) (address.Address, error) {
	return DeriveIndexedIdentity(r.Master, index, r.salt.Bytes())
}

// Close zeroes the salt.
func (r *MasterRecord) Close() error {
	return r.salt.Close()
}
