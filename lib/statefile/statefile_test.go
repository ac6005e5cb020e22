// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `cbor:"1,keyasint"`
	Count int    `cbor:"2,keyasint"`
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	if err := Write(path, record{Name: "ledger", Count: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got record
	if err := Read(path, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Name != "ledger" || got.Count != 3 {
		t.Errorf("Read = %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	if err := Write(path, record{Name: "first"}); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := Write(path, record{Name: "second", Count: 9}); err != nil {
		t.Fatalf("Write second: %v", err)
	}
	var got record
	if err := Read(path, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Name != "second" || got.Count != 9 {
		t.Errorf("Read = %+v, want the second write", got)
	}
}

func TestReadMissing(t *testing.T) {
	var got record
	err := Read(filepath.Join(t.TempDir(), "absent.cbor"), &got)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	if err := WriteBytes(path, []byte{0xff, 0x00}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	var got record
	if err := Read(path, &got); !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	if err := WriteBytes(path, []byte{0x01}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
