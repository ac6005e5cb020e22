// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/signer"
	"github.com/bureau-foundation/pdw/lib/wallet"
)

type grantParams struct {
	cli.ConfigParams
	cli.KeyParams
	cli.JSONOutput
	Content   string        `flag:"content,c" desc:"content identity to share (required unless --batch)"`
	Kind      string        `flag:"kind" desc:"grantee kind: wallet or app" default:"wallet"`
	Scope     string        `flag:"scope,s" desc:"access scope: read, write or admin" default:"read"`
	ExpiresIn time.Duration `flag:"expires-in" desc:"grant lifetime" default:"24h"`
	Batch     string        `flag:"batch" desc:"JSONC file of grants to create"`
	Submit    bool          `flag:"submit" desc:"sign and submit to the ledger"`
	Out       string        `flag:"out,o" desc:"write the unsigned transaction bytes here (single grant only)"`
}

// transactionResult is the JSON output of one grant or revoke.
type transactionResult struct {
	Grant     string `json:"grant,omitempty"`
	Content   string `json:"content"`
	Grantee   string `json:"grantee"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Digest    string `json:"digest"`
	Submitted bool   `json:"submitted"`
	Status    string `json:"status,omitempty"`
}

// GrantCommand returns "pdw grant".
func GrantCommand() *cli.Command {
	var params grantParams
	return &cli.Command{
		Name:    "grant",
		Summary: "Grant a wallet or app access to content",
		Description: `Create access grants over content you own or administer. The signing
key is the grantor: the content owner, or a wallet holding an active
admin grant over the content. Admins cannot grant to themselves.

A batch file lists several grants in JSONC:

  {
    "grants": [
      // Read access for a week.
      {"content": "0x4cfa", "grantee": "0xb0b", "scope": "read", "expires_in": "168h"},
      {"content": "0x4cfa", "grantee": "com.example.viewer", "kind": "app", "scope": "read", "expires_in": "24h"},
    ]
  }`,
		Usage: "pdw grant --key <key> --content <identity> <grantee> [flags]",
		Examples: []cli.Example{
			{Description: "Give a wallet read access for a day", Command: "pdw grant --key wallet.key --content 0x4cfa 0xb0b --submit"},
			{Description: "Apply a batch of grants", Command: "pdw grant --key wallet.key --batch grants.jsonc --submit"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("grant", &params) },
		Run: func(args []string) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			key, err := params.LoadSigner()
			if err != nil {
				return err
			}
			defer key.Close()

			requests, err := grantRequests(&params, args, key)
			if err != nil {
				return err
			}
			if params.Out != "" && len(requests) != 1 {
				return errors.New("--out writes a single transaction; it cannot be used with a batch")
			}

			environment, err := cli.Open(cfg, cli.NewCommandLogger().With("command", "grant"))
			if err != nil {
				return err
			}
			defer environment.Close()

			ctx := context.Background()
			var results []transactionResult
			for _, request := range requests {
				transaction, created, err := environment.Wallet.GrantAccess(ctx, request)
				if err != nil {
					return fmt.Errorf("granting %s on %s: %w", request.Grantee, request.Content, err)
				}
				result := transactionResult{
					Grant:     created.ID.String(),
					Content:   created.ContentIdentity.String(),
					Grantee:   created.Grantee,
					Scope:     created.Scope.String(),
					ExpiresAt: created.ExpiresAt,
				}
				if err := finish(ctx, environment, transaction, key, params.Submit, params.Out, &result); err != nil {
					return err
				}
				results = append(results, result)
			}
			if params.Submit {
				if err := environment.SaveLedger(); err != nil {
					return err
				}
			}
			return emitResults(&params.JSONOutput, results)
		},
	}
}

// grantRequests builds the requests from --batch or from the single
// grant flags and the grantee argument.
func grantRequests(params *grantParams, args []string, key *signer.Ed25519) ([]wallet.GrantRequest, error) {
	now := time.Now()
	if params.Batch != "" {
		if len(args) != 0 || params.Content != "" {
			return nil, errors.New("--batch cannot be combined with --content or a grantee argument")
		}
		batch, err := grant.ReadBatchFile(params.Batch)
		if err != nil {
			return nil, err
		}
		grants, err := batch.Grants(key.Address(), now)
		if err != nil {
			return nil, err
		}
		requests := make([]wallet.GrantRequest, len(grants))
		for i, g := range grants {
			requests[i] = wallet.GrantRequest{
				Content:   g.ContentIdentity,
				Grantee:   g.Grantee,
				Kind:      g.Kind,
				Scope:     g.Scope,
				ExpiresAt: time.UnixMilli(g.ExpiresAt),
				GrantedBy: key.Address(),
			}
		}
		return requests, nil
	}

	if len(args) != 1 {
		return nil, errors.New("exactly one grantee argument is required")
	}
	content, err := cli.ParseAddress("content", params.Content)
	if err != nil {
		return nil, err
	}
	kind, err := grant.ParseGranteeKind(params.Kind)
	if err != nil {
		return nil, err
	}
	scope, err := grant.ParseScope(params.Scope)
	if err != nil {
		return nil, err
	}
	if params.ExpiresIn <= 0 {
		return nil, errors.New("--expires-in must be positive")
	}
	return []wallet.GrantRequest{{
		Content:   content,
		Grantee:   args[0],
		Kind:      kind,
		Scope:     scope,
		ExpiresAt: now.Add(params.ExpiresIn),
		GrantedBy: key.Address(),
	}}, nil
}

// finish records transaction's digest in result and either submits it
// or writes its unsigned bytes to out.
func finish(ctx context.Context, environment *cli.Environment, transaction *authtx.Transaction, key signer.Signer, submit bool, out string, result *transactionResult) error {
	digest, err := transaction.Digest()
	if err != nil {
		return err
	}
	result.Digest = digest.String()

	if out != "" {
		data, err := transaction.Bytes()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("writing transaction: %w", err)
		}
	}
	if !submit {
		return nil
	}

	submitted, err := environment.Wallet.Submit(ctx, transaction, key)
	if err != nil {
		return err
	}
	result.Submitted = true
	result.Status = string(submitted.Status)
	if submitted.Status != ledger.StatusSuccess {
		return fmt.Errorf("transaction %s failed on the ledger: %s", submitted.Digest, submitted.Error)
	}
	return nil
}

func emitResults(output *cli.JSONOutput, results []transactionResult) error {
	if done, err := output.EmitJSON(results); done {
		return err
	}
	table := cli.NewTable(os.Stdout, "DIGEST", "GRANTEE", "SCOPE", "STATE")
	for _, result := range results {
		state := table.Faint("unsigned")
		if result.Submitted {
			state = table.Good(result.Status)
		}
		table.Row(result.Digest, result.Grantee, result.Scope, state)
	}
	return table.Flush()
}
