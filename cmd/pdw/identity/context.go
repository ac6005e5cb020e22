// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

// SaltFileName is the default master salt file inside the state
// directory.
const SaltFileName = "master.salt"

// ContextCommand returns the "pdw context" command group.
func ContextCommand() *cli.Command {
	return &cli.Command{
		Name:    "context",
		Summary: "Manage context wallets derived from a master wallet",
		Description: `Context wallets are per-application identities derived from a master
wallet and a secret salt. Content encrypted under a context wallet is
owned by the master, and grants over it are managed by the master.

The salt is created once by "pdw context init" and must be backed up:
without it the context wallet addresses cannot be derived again.`,
		Subcommands: []*cli.Command{
			contextInitCommand(),
			contextDeriveCommand(),
			contextRegisterCommand(),
			contextListCommand(),
		},
	}
}

// SaltParams locates the master salt.
type SaltParams struct {
	SaltPath string `flag:"salt" desc:"master salt file (default: <state>/master.salt)"`
}

func (p *SaltParams) path(stateDir string) string {
	if p.SaltPath != "" {
		return p.SaltPath
	}
	return filepath.Join(stateDir, SaltFileName)
}

type contextInitParams struct {
	cli.ConfigParams
	cli.KeyParams
	SaltParams
	Force bool `flag:"force" desc:"overwrite an existing salt"`
}

func contextInitCommand() *cli.Command {
	var params contextInitParams
	return &cli.Command{
		Name:    "init",
		Summary: "Create the master derivation salt",
		Usage:   "pdw context init --key <key> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("init", &params) },
		Run: func(args []string) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}
			key, err := params.LoadSigner()
			if err != nil {
				return err
			}
			defer key.Close()

			path := params.path(cfg.Paths.State)
			if !params.Force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite, which orphans existing context wallets)", path)
				}
			}
			record, err := derivation.NewMasterRecord(key.Address())
			if err != nil {
				return err
			}
			defer record.Close()
			if err := record.Save(path); err != nil {
				return err
			}
			fmt.Printf("master %s salt written to %s\n", key.Address(), path)
			return nil
		},
	}
}

type contextDeriveParams struct {
	cli.ConfigParams
	cli.JSONOutput
	SaltParams
	Master string `flag:"master" desc:"master wallet address (required)"`
	App    string `flag:"app" desc:"derive the context wallet for this application ID"`
	Index  string `flag:"index" desc:"derive the context wallet at this registry index"`
}

// deriveResult is the JSON output of "pdw context derive".
type deriveResult struct {
	Master  string `json:"master"`
	App     string `json:"app,omitempty"`
	Index   string `json:"index,omitempty"`
	Address string `json:"address"`
}

func contextDeriveCommand() *cli.Command {
	var params contextDeriveParams
	return &cli.Command{
		Name:    "derive",
		Summary: "Derive a context wallet address without registering it",
		Usage:   "pdw context derive --master <address> (--app <id> | --index <n>) [flags]",
		Examples: []cli.Example{
			{Description: "Address of the notes app context", Command: "pdw context derive --master 0xa11ce --app com.example.notes"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("derive", &params) },
		Run: func(args []string) error {
			if (params.App == "") == (params.Index == "") {
				return errors.New("exactly one of --app and --index is required")
			}
			master, err := cli.ParseAddress("master", params.Master)
			if err != nil {
				return err
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			record, err := derivation.LoadMasterRecord(master, params.path(cfg.Paths.State))
			if err != nil {
				return err
			}
			defer record.Close()

			var derived address.Address
			if params.App != "" {
				derived, err = record.DeriveForApp(params.App)
			} else {
				index, parseErr := strconv.ParseUint(params.Index, 10, 64)
				if parseErr != nil {
					return fmt.Errorf("--index: %w", parseErr)
				}
				derived, err = record.DeriveAt(index)
			}
			if err != nil {
				return err
			}

			result := deriveResult{Master: master.String(), App: params.App, Index: params.Index, Address: derived.String()}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Println(result.Address)
			return nil
		},
	}
}

type contextRegisterParams struct {
	cli.ConfigParams
	cli.KeyParams
	cli.JSONOutput
	SaltParams
	Hint string `flag:"hint" desc:"application hint recorded with the wallet"`
}

// registerResult is the JSON output of "pdw context register".
type registerResult struct {
	Master  string `json:"master"`
	Index   uint64 `json:"index"`
	Address string `json:"address"`
	Hint    string `json:"hint,omitempty"`
	Digest  string `json:"digest"`
}

func contextRegisterCommand() *cli.Command {
	var params contextRegisterParams
	return &cli.Command{
		Name:    "register",
		Summary: "Register the next context wallet on the ledger",
		Description: `Derive the context wallet at the master's next registry index and
submit its registration, signed by the master key. Registering an
existing hint returns the wallet already registered under it.`,
		Usage: "pdw context register --key <master key> [--hint <app>] [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("register", &params) },
		Run: func(args []string) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "context register")
			environment, err := cli.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer environment.Close()

			key, err := params.LoadSigner()
			if err != nil {
				return err
			}
			defer key.Close()
			record, err := derivation.LoadMasterRecord(key.Address(), params.path(cfg.Paths.State))
			if err != nil {
				return err
			}
			defer record.Close()

			ctx := context.Background()
			if _, err := environment.Wallet.AddMaster(ctx, record); err != nil {
				return err
			}
			if params.Hint != "" {
				if existing, ok := environment.Wallet.Registry().Lookup(key.Address(), params.Hint); ok {
					return emitRegistered(&params.JSONOutput, existing.Master, existing.Index, existing.Address, existing.AppHint, "")
				}
			}

			wallet, transaction, err := environment.Wallet.RegisterContext(key.Address(), params.Hint)
			if err != nil {
				return err
			}
			result, err := environment.Wallet.Submit(ctx, transaction, key)
			if err != nil {
				return err
			}
			if result.Status != ledger.StatusSuccess {
				return fmt.Errorf("registration failed on the ledger: %s", result.Error)
			}
			if err := environment.SaveLedger(); err != nil {
				return err
			}
			return emitRegistered(&params.JSONOutput, wallet.Master, wallet.Index, wallet.Address, wallet.AppHint, result.Digest)
		},
	}
}

func emitRegistered(output *cli.JSONOutput, master address.Address, index uint64, wallet address.Address, hint, digest string) error {
	result := registerResult{Master: master.String(), Index: index, Address: wallet.String(), Hint: hint, Digest: digest}
	if done, err := output.EmitJSON(result); done {
		return err
	}
	fmt.Printf("%s (index %d)\n", result.Address, result.Index)
	return nil
}

type contextListParams struct {
	cli.ConfigParams
	cli.JSONOutput
	SaltParams
	Master string `flag:"master" desc:"master wallet address (required)"`
}

// listEntry is one line of "pdw context list".
type listEntry struct {
	Index     uint64 `json:"index"`
	Address   string `json:"address"`
	Hint      string `json:"hint,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func contextListCommand() *cli.Command {
	var params contextListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List the context wallets registered under a master",
		Usage:   "pdw context list --master <address> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(args []string) error {
			master, err := cli.ParseAddress("master", params.Master)
			if err != nil {
				return err
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			environment, err := cli.Open(cfg, cli.NewCommandLogger().With("command", "context list"))
			if err != nil {
				return err
			}
			defer environment.Close()

			record, err := derivation.LoadMasterRecord(master, params.path(cfg.Paths.State))
			if err != nil {
				return err
			}
			defer record.Close()
			if _, err := environment.Wallet.AddMaster(context.Background(), record); err != nil {
				return err
			}

			var entries []listEntry
			for _, wallet := range environment.Wallet.Registry().Wallets(master) {
				entries = append(entries, listEntry{
					Index:     wallet.Index,
					Address:   wallet.Address.String(),
					Hint:      wallet.AppHint,
					CreatedAt: wallet.CreatedAt,
				})
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable(os.Stdout, "INDEX", "ADDRESS", "HINT")
			for _, entry := range entries {
				table.Row(strconv.FormatUint(entry.Index, 10), entry.Address, entry.Hint)
			}
			return table.Flush()
		},
	}
}
