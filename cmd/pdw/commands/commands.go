// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete pdw command tree.
package commands

import (
	"fmt"

	"github.com/bureau-foundation/pdw/cmd/pdw/access"
	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/cmd/pdw/content"
	"github.com/bureau-foundation/pdw/cmd/pdw/identity"
	"github.com/bureau-foundation/pdw/cmd/pdw/server"
	"github.com/bureau-foundation/pdw/lib/version"
)

// Root builds and returns the pdw command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "pdw",
		Description: `pdw: personal data wallet.

Encrypt data under your wallet, share it with other wallets and apps
through on-ledger grants, and decrypt it through threshold key servers
that check those grants on every request.

Configuration is read from --config or $PDW_CONFIG.`,
		Subcommands: []*cli.Command{
			identity.KeygenCommand(),
			identity.ContextCommand(),
			content.EncryptCommand(),
			content.DecryptCommand(),
			access.GrantCommand(),
			access.RevokeCommand(),
			access.GrantsCommand(),
			access.AuthTxCommand(),
			server.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("pdw %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Create a wallet key",
				Command:     "pdw keygen --out wallet.key",
			},
			{
				Description: "Encrypt a file under your wallet",
				Command:     "pdw encrypt --owner 0xa11ce --in notes.txt --store",
			},
			{
				Description: "Share it with another wallet for a week",
				Command:     "pdw grant --key wallet.key --content 0xa11ce 0xb0b --expires-in 168h --submit",
			},
			{
				Description: "Decrypt as the grantee",
				Command:     "pdw decrypt --key bob.key --blob <id> --out notes.txt",
			},
		},
	}
}
