// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile reads and writes small local state files: ledger
// snapshots, master salts, signing keys. Writes are atomic (write to a
// temporary file in the same directory, fsync, rename) so readers
// never see a partial file, and files are created with mode 0600.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/pdw/lib/codec"
)

// ErrCorrupt is returned by [Read] when a file exists but does not
// decode.
var ErrCorrupt = errors.New("statefile: corrupt state file")

// WriteBytes atomically replaces path with data. The parent directory
// must already exist.
func WriteBytes(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("statefile: creating temporary file: %w", err)
	}

	// Write, sync, close, in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: closing %s: %w", temporaryPath, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statefile: renaming into %s: %w", path, err)
	}

	// Sync the parent directory so the rename survives power loss.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Write encodes v as CBOR and atomically replaces path with it.
func Write(path string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("statefile: encoding %s: %w", path, err)
	}
	return WriteBytes(path, data)
}

// Read decodes the CBOR file at path into v. When the file does not
// exist, the returned error wraps os.ErrNotExist (testable with
// errors.Is). Undecodable content wraps ErrCorrupt.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	return nil
}

// Remove deletes a state file. Idempotent: returns nil when the file
// does not exist.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statefile: removing %s: %w", path, err)
	}
	return nil
}
