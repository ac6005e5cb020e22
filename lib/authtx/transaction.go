// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// TransactionVersion is the encoding version of [Transaction].
const TransactionVersion = 1

// ErrInvalidTransaction is returned by [Decode] for bytes that are not
// a well-formed transaction.
var ErrInvalidTransaction = errors.New("authtx: invalid transaction")

// Transaction is an unsigned programmable transaction. Its encoded
// form is what key servers evaluate and what the ledger executes.
type Transaction struct {
	Version uint8             `cbor:"1,keyasint"`
	Sender  address.Address   `cbor:"2,keyasint"`
	Calls   []ledger.MoveCall `cbor:"3,keyasint"`
}

// Bytes returns the deterministic CBOR encoding. Identical
// transactions always encode to identical bytes.
func (t *Transaction) Bytes() ([]byte, error) {
	data, err := codec.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("authtx: encoding transaction: %w", err)
	}
	return data, nil
}

// Digest returns the transaction digest.
func (t *Transaction) Digest() (contenthash.Hash, error) {
	data, err := t.Bytes()
	if err != nil {
		return contenthash.Hash{}, err
	}
	return contenthash.Transaction(data), nil
}

// Call returns the single Move call of a one-call transaction.
func (t *Transaction) Call() (ledger.MoveCall, error) {
	if len(t.Calls) != 1 {
		return ledger.MoveCall{}, fmt.Errorf("%w: %d calls, want 1", ErrInvalidTransaction, len(t.Calls))
	}
	return t.Calls[0], nil
}

// Decode parses encoded transaction bytes. Unknown fields and trailing
// bytes are rejected.
func Decode(data []byte) (*Transaction, error) {
	var transaction Transaction
	if err := codec.UnmarshalStrict(data, &transaction); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if transaction.Version != TransactionVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidTransaction, transaction.Version)
	}
	if len(transaction.Calls) == 0 {
		return nil, fmt.Errorf("%w: no calls", ErrInvalidTransaction)
	}
	return &transaction, nil
}

// Diagnose renders encoded transaction bytes in CBOR diagnostic
// notation.
func Diagnose(data []byte) (string, error) {
	return codec.Diagnose(data)
}
