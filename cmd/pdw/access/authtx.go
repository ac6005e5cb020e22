// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/grant"
)

// AuthTxCommand returns the "pdw authtx" command group.
func AuthTxCommand() *cli.Command {
	return &cli.Command{
		Name:    "authtx",
		Summary: "Build and inspect authorization transactions",
		Description: `Authorization transactions are the unsigned seal_approve calls key
servers dry-run against the ledger before releasing a key share. These
commands build one without decrypting anything and render encoded
transactions for review.`,
		Subcommands: []*cli.Command{
			authTxBuildCommand(),
			authTxInspectCommand(),
		},
	}
}

type authTxBuildParams struct {
	cli.ConfigParams
	Content   string `flag:"content,c" desc:"content identity (required)"`
	Requestor string `flag:"requestor" desc:"requesting wallet (wallet mode)"`
	User      string `flag:"user" desc:"user address (app and legacy modes)"`
	App       string `flag:"app" desc:"application ID (app mode)"`
	Scope     string `flag:"scope,s" desc:"required scope" default:"read"`
	Out       string `flag:"out,o" desc:"write the transaction bytes here instead of printing them"`
}

func authTxBuildCommand() *cli.Command {
	var params authTxBuildParams
	return &cli.Command{
		Name:    "build",
		Summary: "Build the approval transaction for a decryption request",
		Usage:   "pdw authtx build --content <identity> (--requestor <wallet> | --user <address> [--app <id>]) [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("build", &params) },
		Run: func(args []string) error {
			content, err := cli.ParseAddress("content", params.Content)
			if err != nil {
				return err
			}
			scope, err := grant.ParseScope(params.Scope)
			if err != nil {
				return err
			}

			var requestor authtx.Requestor
			switch {
			case params.Requestor != "":
				wallet, err := cli.ParseAddress("requestor", params.Requestor)
				if err != nil {
					return err
				}
				requestor = authtx.Wallet(wallet)
			case params.User != "":
				user, err := cli.ParseAddress("user", params.User)
				if err != nil {
					return err
				}
				if params.App != "" {
					requestor = authtx.App(user, params.App)
				} else {
					requestor = authtx.Legacy(user)
				}
			default:
				return errors.New("one of --requestor and --user is required")
			}

			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			addresses, err := cli.ParseLedgerAddresses(cfg.Ledger)
			if err != nil {
				return err
			}
			builder := authtx.NewBuilder(authtx.Config{
				PackageID:  addresses.PackageID,
				RegistryID: addresses.RegistryID,
				ClockID:    addresses.ClockID,
				Logger:     cli.NewCommandLogger().With("command", "authtx build"),
			})
			transaction, err := builder.Build(content.Bytes(), requestor, scope)
			if err != nil {
				return err
			}
			data, err := transaction.Bytes()
			if err != nil {
				return err
			}
			if params.Out != "" {
				return os.WriteFile(params.Out, data, 0644)
			}
			return printTransaction(data)
		},
	}
}

func authTxInspectCommand() *cli.Command {
	return &cli.Command{
		Name:    "inspect",
		Summary: "Render an encoded transaction",
		Usage:   "pdw authtx inspect <file>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one transaction file is required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printTransaction(data)
		},
	}
}

// printTransaction prints the digest, sender, call target and CBOR
// diagnostic form of encoded transaction bytes.
func printTransaction(data []byte) error {
	transaction, err := authtx.Decode(data)
	if err != nil {
		return err
	}
	digest, err := transaction.Digest()
	if err != nil {
		return err
	}
	diagnostic, err := authtx.Diagnose(data)
	if err != nil {
		return err
	}
	fmt.Printf("digest: %s\nsender: %s\n", digest, transaction.Sender)
	for _, call := range transaction.Calls {
		fmt.Printf("call:   %s\n", call.Target())
	}
	fmt.Printf("\n%s\n", diagnostic)
	return nil
}
