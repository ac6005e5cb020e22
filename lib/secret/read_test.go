// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile_TrimsWhitespace(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{name: "plain value", content: "AGE-SECRET-KEY-1XYZ", expected: "AGE-SECRET-KEY-1XYZ"},
		{name: "trailing newline", content: "AGE-SECRET-KEY-1XYZ\n", expected: "AGE-SECRET-KEY-1XYZ"},
		{name: "leading whitespace", content: "  AGE-SECRET-KEY-1XYZ", expected: "AGE-SECRET-KEY-1XYZ"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(tempDir, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			buffer, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			defer buffer.Close()
			if got := buffer.String(); got != test.expected {
				t.Errorf("got %q, want %q", got, test.expected)
			}
		})
	}
}

func TestReadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte(" \n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for whitespace-only file")
	}
}

func TestHexFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed")
	seed := bytes.Repeat([]byte{0xab}, 32)

	if err := WriteHexFile(path, seed); err != nil {
		t.Fatalf("WriteHexFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	buffer, err := ReadHexFile(path, 32)
	if err != nil {
		t.Fatalf("ReadHexFile: %v", err)
	}
	defer buffer.Close()
	if !buffer.Equal(seed) {
		t.Errorf("seed = %x, want %x", buffer.Bytes(), seed)
	}
}

func TestReadHexFile_WrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short")
	if err := WriteHexFile(path, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteHexFile: %v", err)
	}
	if _, err := ReadHexFile(path, 32); err == nil {
		t.Fatal("expected error for 3-byte file when 32 requested")
	}
}
