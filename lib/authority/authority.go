// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/session"
)

var (
	// ErrDenied is returned when a key server evaluated the access
	// predicate and it did not hold. It is terminal for the request.
	ErrDenied = errors.New("authority: decryption denied")

	// ErrInvalidSession is returned when key servers rejected the
	// session proof: it expired, was issued for another package, or
	// does not belong to the transaction sender. A new session may
	// succeed where this one failed.
	ErrInvalidSession = errors.New("authority: session proof rejected")

	// ErrTimeout is returned when the context ended before enough
	// shares were collected.
	ErrTimeout = errors.New("authority: timeout")

	// ErrUnavailable is returned when too few key servers could be
	// reached to meet the threshold.
	ErrUnavailable = errors.New("authority: unavailable")
)

// Authority encrypts content under threshold access control and
// decrypts it for callers the access predicate approves.
type Authority interface {
	Encrypt(ctx context.Context, request EncryptRequest) (*EncryptResult, error)
	Decrypt(ctx context.Context, ciphertext []byte, proof *session.Proof, transaction []byte) ([]byte, error)
}

// EncryptRequest describes one encryption.
type EncryptRequest struct {
	// Identity is the content identity: the owner address followed
	// by any suffix.
	Identity []byte

	Plaintext []byte

	// Threshold is the number of shares required to decrypt. Zero
	// selects the authority's default.
	Threshold int

	// Compression is a preference; incompressible plaintext is
	// stored uncompressed.
	Compression envelope.Compression
}

// EncryptResult is a sealed envelope plus its data key.
type EncryptResult struct {
	// Ciphertext is the raw envelope bytes.
	Ciphertext []byte

	// DataKey recovers the plaintext without the key servers. The
	// caller owns it and must Close it.
	DataKey *secret.Buffer

	Fingerprint contenthash.Hash
}

// timeoutError maps a context failure to [ErrTimeout], keeping the
// context error in the chain.
func timeoutError(ctx context.Context, what string) error {
	return fmt.Errorf("%w: %s: %w", ErrTimeout, what, context.Cause(ctx))
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
