// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authority"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/signer"
	"github.com/bureau-foundation/pdw/lib/testutil"
)

// writeTestConfig writes a development configuration with two key
// servers that nothing listens on and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	root := testutil.StateDir(t)

	var servers string
	for i := range 2 {
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		t.Cleanup(func() { keypair.Close() })
		servers += fmt.Sprintf("  - id: ks-%d\n    public_key: %s\n    url: http://127.0.0.1:%d\n", i+1, keypair.PublicKey, 8421+i)
	}

	content := fmt.Sprintf(`environment: development
paths:
  root: %[1]s
  state: %[1]s/state
  blobs: %[1]s/blobs
ledger:
  package_id: "0x5ea1"
  registry_id: "0x6e6"
  clock_id: "0x6"
threshold: 2
key_servers:
%[2]s`, root, servers)

	path := filepath.Join(root, "pdw.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// writeKey saves a deterministic signing key and returns its path.
func writeKey(t *testing.T, fill byte) (string, address.Address) {
	t.Helper()
	key, err := signer.FromSeed(bytes.Repeat([]byte{fill}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer key.Close()
	path := filepath.Join(t.TempDir(), "wallet.key")
	if err := key.Save(path); err != nil {
		t.Fatalf("saving key: %v", err)
	}
	return path, key.Address()
}

func TestExitFor(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "denied", err: fmt.Errorf("%w: no active grant", authority.ErrDenied), code: exitDenied},
		{name: "timeout", err: fmt.Errorf("%w: deadline exceeded", authority.ErrTimeout), code: exitTimeout},
		{name: "unavailable", err: fmt.Errorf("%w: 1 of 2 required key shares released", authority.ErrUnavailable), code: exitUnavailable},
	}
	for _, test := range tests {
		err := exitFor(logger, test.err)
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			t.Errorf("%s: error = %v, want an exit error", test.name, err)
			continue
		}
		if exitErr.ExitCode() != test.code {
			t.Errorf("%s: exit code = %d, want %d", test.name, exitErr.ExitCode(), test.code)
		}
	}

	// A rejected session is neither a denial nor an outage.
	rejected := fmt.Errorf("%w: session expired", authority.ErrInvalidSession)
	if err := exitFor(logger, rejected); err != rejected {
		t.Errorf("rejected session mapped to %v", err)
	}
}

func TestDecryptRequest_Modes(t *testing.T) {
	keyPath, keyAddress := writeKey(t, 0xA)

	request, closeSigner, err := decryptRequest(&decryptParams{KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "wallet", Scope: "read"})
	if err != nil {
		t.Fatalf("wallet mode: %v", err)
	}
	defer closeSigner()
	if request.Requestor != keyAddress || request.AppID != "" || request.Scope != grant.ScopeRead {
		t.Errorf("wallet mode request = %+v", request)
	}

	request, closeApp, err := decryptRequest(&decryptParams{KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "app", App: "com.example.notes", Scope: "write"})
	if err != nil {
		t.Fatalf("app mode: %v", err)
	}
	defer closeApp()
	if !request.Requestor.IsZero() || request.AppID != "com.example.notes" || request.Scope != grant.ScopeWrite {
		t.Errorf("app mode request = %+v", request)
	}

	request, closeLegacy, err := decryptRequest(&decryptParams{KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "legacy", Scope: "read", Owner: keyAddress.String()})
	if err != nil {
		t.Fatalf("legacy mode: %v", err)
	}
	defer closeLegacy()
	if !request.Requestor.IsZero() || request.AppID != "" || request.Owner != keyAddress {
		t.Errorf("legacy mode request = %+v", request)
	}
	if request.Signer.Address() != keyAddress {
		t.Errorf("signer = %s, want %s", request.Signer.Address(), keyAddress)
	}
}

func TestDecryptRequest_Rejects(t *testing.T) {
	keyPath, _ := writeKey(t, 0xA)
	tests := map[string]decryptParams{
		"app without --app": {KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "app", Scope: "read"},
		"unknown mode":      {KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "owner", Scope: "read"},
		"unknown scope":     {KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "wallet", Scope: "root"},
		"bad owner":         {KeyParams: cli.KeyParams{KeyPath: keyPath}, Mode: "wallet", Scope: "read", Owner: "alice"},
		"no key":            {Mode: "wallet", Scope: "read"},
	}
	for name, params := range tests {
		if _, _, err := decryptRequest(&params); err == nil {
			t.Errorf("%s: decryptRequest succeeded", name)
		}
	}
}

func TestBackupKey_DecryptsOffline(t *testing.T) {
	configPath := writeTestConfig(t)
	directory := t.TempDir()
	plaintextPath := filepath.Join(directory, "notes.bin")
	ciphertextPath := filepath.Join(directory, "notes.pdw")
	backupPath := filepath.Join(directory, "notes.backup")
	openedPath := filepath.Join(directory, "notes.out")
	plaintext := []byte{0x00, 0xff, 0xc3, 0x28, 'n', 'o', 't', 'e', 's'}
	if err := os.WriteFile(plaintextPath, plaintext, 0600); err != nil {
		t.Fatalf("writing plaintext: %v", err)
	}

	err := EncryptCommand().Execute([]string{
		"--config", configPath,
		"--owner", "0xa11ce",
		"--in", plaintextPath,
		"--out", ciphertextPath,
		"--backup-key", backupPath,
		"--json",
	})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// No key server listens and no --key is given: only the backup key
	// can open the ciphertext.
	err = DecryptCommand().Execute([]string{
		"--config", configPath,
		"--in", ciphertextPath,
		"--backup-key", backupPath,
		"--out", openedPath,
	})
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	opened, err := os.ReadFile(openedPath)
	if err != nil {
		t.Fatalf("reading plaintext: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("plaintext = %x, want %x", opened, plaintext)
	}

	// A backup key from another envelope does not open this one.
	otherPath := filepath.Join(directory, "other.pdw")
	otherBackup := filepath.Join(directory, "other.backup")
	err = EncryptCommand().Execute([]string{
		"--config", configPath,
		"--owner", "0xa11ce",
		"--in", plaintextPath,
		"--out", otherPath,
		"--backup-key", otherBackup,
		"--json",
	})
	if err != nil {
		t.Fatalf("encrypt other: %v", err)
	}
	err = DecryptCommand().Execute([]string{
		"--config", configPath,
		"--in", ciphertextPath,
		"--backup-key", otherBackup,
		"--out", openedPath,
	})
	if err == nil {
		t.Error("decrypt with another envelope's backup key succeeded")
	}
}

func TestDecryptCommand_RequiresOneSource(t *testing.T) {
	configPath := writeTestConfig(t)
	if err := DecryptCommand().Execute([]string{"--config", configPath}); err == nil {
		t.Error("decrypt without --in or --blob succeeded")
	}
	if err := DecryptCommand().Execute([]string{"--config", configPath, "--in", "a", "--blob", "b"}); err == nil {
		t.Error("decrypt with both --in and --blob succeeded")
	}
}
