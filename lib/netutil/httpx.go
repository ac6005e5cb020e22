// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides the HTTP body helpers shared by the key
// server and its clients. Request and response bodies are CBOR.
//
// Body reads are bounded at MaxBodySize to prevent unbounded memory
// allocation from a misbehaving or malicious peer. Key requests and
// responses carry a wrapped share and a session certificate, so
// legitimate bodies are a few kilobytes.
package netutil

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bureau-foundation/pdw/lib/codec"
)

// ContentType is the media type of every request and response body.
const ContentType = "application/cbor"

// MaxBodySize bounds body reads: 1 MiB.
const MaxBodySize int64 = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// ReadBody reads a body up to MaxBodySize bytes. A longer body is an
// error rather than a silent truncation.
func ReadBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxBodySize {
		return nil, fmt.Errorf("body exceeds %d bytes", MaxBodySize)
	}
	return data, nil
}

// DecodeBody reads a body and strictly CBOR-decodes it into v.
func DecodeBody(body io.Reader, v any) error {
	data, err := ReadBody(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if err := codec.UnmarshalStrict(data, v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// WriteCBOR encodes v and writes it with status.
func WriteCBOR(w http.ResponseWriter, status int, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// WriteError writes an [ErrorResponse] with status.
func WriteError(w http.ResponseWriter, status int, code, message string) error {
	return WriteCBOR(w, status, ErrorResponse{Code: code, Message: message})
}

// ErrorBody reads an error response body for diagnostic messages. A
// CBOR [ErrorResponse] is decoded; anything else is returned as text.
// Read errors are ignored: a partial or empty body is still useful in
// an error message.
func ErrorBody(body io.Reader) ErrorResponse {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	var response ErrorResponse
	if err := codec.UnmarshalStrict(data, &response); err == nil && response.Code != "" {
		return response
	}
	return ErrorResponse{Message: string(data)}
}
