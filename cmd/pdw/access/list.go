// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/grant"
)

type grantsParams struct {
	cli.ConfigParams
	cli.JSONOutput
	Content string `flag:"content,c" desc:"content identity (required)"`
	Owner   string `flag:"owner" desc:"wallet holding the grant objects (default: the content owner)"`
	All     bool   `flag:"all" desc:"include revoked and expired grants"`
}

// grantEntry is one line of "pdw grants".
type grantEntry struct {
	ID        string `json:"id"`
	Grantee   string `json:"grantee"`
	Kind      string `json:"kind"`
	Scope     string `json:"scope"`
	GrantedBy string `json:"granted_by"`
	GrantedAt int64  `json:"granted_at"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
}

// GrantsCommand returns "pdw grants".
func GrantsCommand() *cli.Command {
	var params grantsParams
	return &cli.Command{
		Name:    "grants",
		Summary: "List the grants over content",
		Usage:   "pdw grants --content <identity> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("grants", &params) },
		Run: func(args []string) error {
			content, err := cli.ParseAddress("content", params.Content)
			if err != nil {
				return err
			}
			owner := content
			if params.Owner != "" {
				if owner, err = address.Parse(params.Owner); err != nil {
					return fmt.Errorf("--owner: %w", err)
				}
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			environment, err := cli.Open(cfg, cli.NewCommandLogger().With("command", "grants"))
			if err != nil {
				return err
			}
			defer environment.Close()

			if err := environment.Wallet.Refresh(context.Background(), owner); err != nil {
				return err
			}

			now := time.Now()
			var entries []grantEntry
			for _, g := range environment.Wallet.Grants().Grants(content) {
				active := grant.IsActive(g, now)
				if !active && !params.All {
					continue
				}
				entries = append(entries, grantEntry{
					ID:        g.ID.String(),
					Grantee:   g.Grantee,
					Kind:      g.Kind.String(),
					Scope:     g.Scope.String(),
					GrantedBy: g.GrantedBy.String(),
					GrantedAt: g.GrantedAt,
					ExpiresAt: g.ExpiresAt,
					Active:    active,
				})
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable(os.Stdout, "GRANTEE", "KIND", "SCOPE", "GRANTED BY", "EXPIRES")
			for _, entry := range entries {
				expires := time.UnixMilli(entry.ExpiresAt).UTC().Format(time.RFC3339)
				if !entry.Active {
					expires = table.Faint(expires + " (inactive)")
				}
				table.Row(entry.Grantee, entry.Kind, entry.Scope, entry.GrantedBy, expires)
			}
			return table.Flush()
		},
	}
}
