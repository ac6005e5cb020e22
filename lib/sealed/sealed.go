// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/statefile"
)

// ErrNoRecipients is returned by [Encrypt] without recipients.
var ErrNoRecipients = errors.New("sealed: at least one recipient is required")

// Keypair holds an age x25519 keypair. The private key is stored in
// mmap-backed memory that is locked against swap and excluded from
// core dumps. Call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the age secret key (starts with "AGE-SECRET-KEY-1").
	PrivateKey *secret.Buffer

	// PublicKey is the age public key (starts with "age1"). Public
	// keys are not secret.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// Save writes the private key to path with mode 0600.
func (k *Keypair) Save(path string) error {
	key := k.PrivateKey.Bytes()
	data := make([]byte, 0, len(key)+1)
	data = append(append(data, key...), '\n')
	defer secret.Zero(data)
	if err := statefile.WriteBytes(path, data); err != nil {
		return fmt.Errorf("sealed: saving keypair: %w", err)
	}
	return nil
}

// GenerateKeypair creates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// LoadKeypair reads a private key written by [Keypair.Save] and
// derives its public key.
func LoadKeypair(path string) (*Keypair, error) {
	privateKey, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		privateKey.Close()
		return nil, fmt.Errorf("sealed: %s does not hold an age private key: %w", path, err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt encrypts plaintext to every recipient. Any one of the
// corresponding private keys can decrypt the result.
func Encrypt(plaintext []byte, recipientKeys ...string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, ErrNoRecipients
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt decrypts age ciphertext with privateKey. The plaintext is
// returned in a secret.Buffer; the caller must Close it.
func Decrypt(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading decrypted plaintext: %w", err)
	}

	// secret.NewFromBytes rejects empty input. An empty plaintext is
	// valid, so represent it as a single zero byte buffer.
	if len(plaintext) == 0 {
		buffer, err := secret.New(1)
		if err != nil {
			return nil, fmt.Errorf("sealed: protecting decrypted plaintext: %w", err)
		}
		return buffer, nil
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// ParsePublicKey validates an age public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("sealed: invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("sealed: invalid age private key: %w", err)
	}
	return nil
}
