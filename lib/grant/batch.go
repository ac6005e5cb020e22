// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/pdw/lib/address"
)

// BatchEntry is one line of a grant batch file:
//
//	{
//	  // Share the notes context with the reading app for a week.
//	  "content": "0x4cfa...",
//	  "grantee": "0xb0b...",
//	  "kind": "wallet",
//	  "scope": "read",
//	  "expires_in": "168h",
//	}
type BatchEntry struct {
	Content   string `json:"content"`
	Grantee   string `json:"grantee"`
	Kind      string `json:"kind,omitempty"`
	Scope     string `json:"scope"`
	ExpiresIn string `json:"expires_in"`
}

// Batch is a parsed grant batch file.
type Batch struct {
	Entries []BatchEntry `json:"grants"`
}

// ParseBatch strips JSONC comments and trailing commas, then decodes
// a batch.
func ParseBatch(data []byte) (*Batch, error) {
	stripped := jsonc.ToJSON(data)

	var batch Batch
	if err := json.Unmarshal(stripped, &batch); err != nil {
		return nil, fmt.Errorf("parsing grant batch: %w", err)
	}
	return &batch, nil
}

// ReadBatchFile reads and parses a batch file.
func ReadBatchFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grant batch: %w", err)
	}
	return ParseBatch(data)
}

// Grants converts every entry into an AccessGrant issued by grantedBy
// at now. Entry errors are joined so one run reports all of them.
func (b *Batch) Grants(grantedBy address.Address, now time.Time) ([]AccessGrant, error) {
	var (
		result []AccessGrant
		errs   []error
	)
	for position, entry := range b.Entries {
		g, err := entry.toGrant(grantedBy, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("grants[%d]: %w", position, err))
			continue
		}
		result = append(result, g)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func (e BatchEntry) toGrant(grantedBy address.Address, now time.Time) (AccessGrant, error) {
	content, err := address.Parse(e.Content)
	if err != nil {
		return AccessGrant{}, fmt.Errorf("content: %w", err)
	}
	kind := GranteeWallet
	if e.Kind != "" {
		kind, err = ParseGranteeKind(e.Kind)
		if err != nil {
			return AccessGrant{}, err
		}
	}
	scope, err := ParseScope(e.Scope)
	if err != nil {
		return AccessGrant{}, err
	}
	duration, err := time.ParseDuration(e.ExpiresIn)
	if err != nil {
		return AccessGrant{}, fmt.Errorf("expires_in: %w", err)
	}
	grantee := e.Grantee
	if kind == GranteeWallet {
		parsed, err := address.Parse(e.Grantee)
		if err != nil {
			return AccessGrant{}, fmt.Errorf("grantee: %w", err)
		}
		grantee = parsed.String()
	}
	return New(content, grantee, kind, scope, grantedBy, now, now.Add(duration)), nil
}
