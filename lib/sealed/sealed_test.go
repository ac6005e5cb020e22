// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/pdw/lib/secret"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not have prefix AGE-SECRET-KEY-1")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}

	other := generate(t)
	if keypair.PublicKey == other.PublicKey {
		t.Error("two generated keypairs have identical public keys")
	}
}

func TestEncryptDecrypt_BinaryRoundTrip(t *testing.T) {
	keypair := generate(t)

	// Bytes that are not valid UTF-8 and would not survive a text
	// encoding mistake.
	plaintext := []byte{0x00, 0xff, 0xfe, 0x80, 0xc3, 0x28, 0x0a, 0x00}
	ciphertext, err := Encrypt(plaintext, keypair.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, []byte("age-encryption.org/v1")) {
		t.Errorf("ciphertext is not raw age format: %q", ciphertext[:16])
	}

	decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	defer decrypted.Close()
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %x, want %x", decrypted.Bytes(), plaintext)
	}
}

func TestEncrypt_MultipleRecipients(t *testing.T) {
	first := generate(t)
	second := generate(t)
	ciphertext, err := Encrypt([]byte("share"), first.PublicKey, second.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	for name, keypair := range map[string]*Keypair{"first": first, "second": second} {
		decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt(%s) error: %v", name, err)
		}
		if decrypted.String() != "share" {
			t.Errorf("Decrypt(%s) = %q", name, decrypted.String())
		}
		decrypted.Close()
	}
}

func TestEncrypt_Errors(t *testing.T) {
	if _, err := Encrypt([]byte("x")); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("Encrypt without recipients error = %v, want ErrNoRecipients", err)
	}
	if _, err := Encrypt([]byte("x"), "age1notakey"); err == nil {
		t.Error("Encrypt to malformed recipient succeeded")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	keypair := generate(t)
	other := generate(t)
	ciphertext, err := Encrypt([]byte("secret"), keypair.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := Decrypt(ciphertext, other.PrivateKey); err == nil {
		t.Error("Decrypt with the wrong key succeeded")
	}
}

func TestSaveLoadKeypair(t *testing.T) {
	keypair := generate(t)
	path := filepath.Join(t.TempDir(), "server.key")
	if err := keypair.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadKeypair(path)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	defer loaded.Close()
	if loaded.PublicKey != keypair.PublicKey {
		t.Errorf("loaded PublicKey = %q, want %q", loaded.PublicKey, keypair.PublicKey)
	}
	if !loaded.PrivateKey.Equal(keypair.PrivateKey.Bytes()) {
		t.Error("loaded PrivateKey differs")
	}
}

func TestParseKeys(t *testing.T) {
	keypair := generate(t)
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
	if err := ParsePublicKey("not-a-key"); err == nil {
		t.Error("ParsePublicKey accepted garbage")
	}
	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("ParsePrivateKey: %v", err)
	}
	garbage, err := secret.NewFromBytes([]byte("AGE-SECRET-KEY-1NOPE"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer garbage.Close()
	if err := ParsePrivateKey(garbage); err == nil {
		t.Error("ParsePrivateKey accepted garbage")
	}
}
