// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the wallet's standard CBOR encoding
// configuration.
//
// Everything that crosses a trust or process boundary as bytes is CBOR:
// authorization transactions evaluated by key servers, session
// challenges signed by the user's wallet, ciphertext envelopes stored
// on the blob store, ledger object contents and key-server requests.
// JSON appears only in CLI output and in human-edited grant files.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which is what
// lets two independently built authorization transactions compare
// equal byte for byte.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// [UnmarshalStrict] is for bytes received from another party (key
// server requests, envelopes read back from storage): it rejects
// duplicate map keys, unknown fields and trailing data so that two
// parsers can never disagree about what a message says.
//
// # Struct Tag Rules
//
//   - `cbor` tag with keyasint: wire types that are only ever CBOR
//     (transactions, envelopes, challenges). Integer keys keep the
//     encoding compact and stable across field renames.
//   - `json` tag: types that are also printed by the CLI or read from
//     JSONC files. fxamacker/cbor falls back to json tags when no cbor
//     tag is present.
//
// Never use both tags on the same field.
package codec
