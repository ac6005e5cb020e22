// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bureau-foundation/pdw/lib/statefile"
)

// ReadFile reads a secret from a file path, or from stdin if path is
// "-". Leading and trailing whitespace is trimmed. Returns an error if
// the source is empty after trimming.
func ReadFile(path string) (*Buffer, error) {
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s is empty", describe(path))
	}
	return NewFromBytes(trimmed)
}

// ReadHexFile reads a hex-encoded secret of exactly size bytes, the
// format the CLI uses for Ed25519 seeds and derivation salts.
func ReadHexFile(path string, size int) (*Buffer, error) {
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	decoded := make([]byte, hex.DecodedLen(len(trimmed)))
	written, err := hex.Decode(decoded, trimmed)
	if err != nil {
		Zero(decoded)
		return nil, fmt.Errorf("secret: %s is not valid hex: %w", describe(path), err)
	}
	if written != size {
		Zero(decoded)
		return nil, fmt.Errorf("secret: %s holds %d bytes, want %d", describe(path), written, size)
	}
	return NewFromBytes(decoded[:written])
}

// WriteHexFile writes data hex-encoded to path with 0600 permissions.
func WriteHexFile(path string, data []byte) error {
	encoded := make([]byte, hex.EncodedLen(len(data))+1)
	hex.Encode(encoded, data)
	encoded[len(encoded)-1] = '\n'
	defer Zero(encoded)

	if err := statefile.WriteBytes(path, encoded); err != nil {
		return fmt.Errorf("secret: %w", err)
	}
	return nil
}

func readRaw(path string) ([]byte, error) {
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: %w", err)
		}
		return data, nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("secret: reading stdin: %w", err)
		}
		return nil, fmt.Errorf("secret: stdin is empty")
	}
	// scanner.Bytes aliases the scanner's buffer; copy so the caller
	// can zero what it owns.
	line := scanner.Bytes()
	data := make([]byte, len(line))
	copy(data, line)
	Zero(line)
	return data, nil
}

func describe(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}
