// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
)

type revokeParams struct {
	cli.ConfigParams
	cli.KeyParams
	cli.JSONOutput
	Content string `flag:"content,c" desc:"content identity (required)"`
	Submit  bool   `flag:"submit" desc:"sign and submit to the ledger"`
	Out     string `flag:"out,o" desc:"write the unsigned transaction bytes here"`
}

// RevokeCommand returns "pdw revoke".
func RevokeCommand() *cli.Command {
	var params revokeParams
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke every grant a grantee holds over content",
		Description: `Revoke all active grants to a grantee (wallet address or app ID) over
one content identity. The signing key must be the content owner or
hold an active admin grant over the content. Revocation takes effect
for the next decryption: sessions already open do not keep access.`,
		Usage: "pdw revoke --key <key> --content <identity> <grantee> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("revoke", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one grantee argument is required")
			}
			content, err := cli.ParseAddress("content", params.Content)
			if err != nil {
				return err
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			key, err := params.LoadSigner()
			if err != nil {
				return err
			}
			defer key.Close()

			environment, err := cli.Open(cfg, cli.NewCommandLogger().With("command", "revoke"))
			if err != nil {
				return err
			}
			defer environment.Close()

			ctx := context.Background()
			transaction, err := environment.Wallet.RevokeAccess(ctx, key.Address(), content, args[0])
			if err != nil {
				return fmt.Errorf("revoking %s on %s: %w", args[0], content, err)
			}
			result := transactionResult{Content: content.String(), Grantee: args[0]}
			if err := finish(ctx, environment, transaction, key, params.Submit, params.Out, &result); err != nil {
				return err
			}
			if params.Submit {
				if err := environment.SaveLedger(); err != nil {
					return err
				}
			}
			return emitResults(&params.JSONOutput, []transactionResult{result})
		},
	}
}
