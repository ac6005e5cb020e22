// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/keyserver"
	"github.com/bureau-foundation/pdw/lib/sealed"
)

// Command returns the "pdw keyserver" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "keyserver",
		Summary: "Set up and check key servers",
		Subcommands: []*cli.Command{
			keygenCommand(),
			statusCommand(),
		},
	}
}

type keygenParams struct {
	cli.JSONOutput
	Out   string `flag:"out,o" desc:"identity file to write (required)"`
	Force bool   `flag:"force" desc:"overwrite an existing identity file"`
}

func keygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a key server identity",
		Description: `Generate the age x25519 identity a key server unwraps its shares with.
The private key is written to --out with mode 0600. The printed public
key goes into the key_servers list of every client configuration.`,
		Usage: "pdw keyserver keygen --out <path> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("keygen", &params) },
		Run: func(args []string) error {
			if params.Out == "" {
				return errors.New("--out is required")
			}
			if !params.Force {
				if _, err := os.Stat(params.Out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
				}
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()
			if err := keypair.Save(params.Out); err != nil {
				return err
			}
			if done, err := params.EmitJSON(map[string]string{"public_key": keypair.PublicKey, "path": params.Out}); done {
				return err
			}
			fmt.Println(keypair.PublicKey)
			return nil
		},
	}
}

type statusParams struct {
	cli.ConfigParams
	cli.JSONOutput
}

// serverStatus is one line of "pdw keyserver status".
type serverStatus struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
	Problem string `json:"problem,omitempty"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Check that the configured key servers answer and match",
		Description: `Query every configured key server and compare its reported ID, public
key and package with the configuration. Exits 1 when fewer servers are
healthy than the decryption threshold needs.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(args []string) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			addresses, err := cli.ParseLedgerAddresses(cfg.Ledger)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if cfg.Timeouts.Authority > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Authority)
				defer cancel()
			}

			httpClient := &http.Client{}
			healthy := 0
			statuses := make([]serverStatus, len(cfg.KeyServers))
			for i, configured := range cfg.KeyServers {
				status := serverStatus{ID: configured.ID, URL: configured.URL}
				info, err := keyserver.NewClient(configured.URL, httpClient).Service(ctx)
				switch {
				case err != nil:
					status.Problem = err.Error()
				case info.ID != configured.ID:
					status.Problem = fmt.Sprintf("reports ID %q", info.ID)
				case info.PublicKey != configured.PublicKey:
					status.Problem = "public key differs from configuration"
				case info.PackageID != addresses.PackageID:
					status.Problem = fmt.Sprintf("serves package %s", info.PackageID)
				default:
					status.Healthy = true
					healthy++
				}
				if info != nil {
					status.Version = info.Version
				}
				statuses[i] = status
			}

			if done, err := params.EmitJSON(statuses); done {
				if err != nil {
					return err
				}
			} else {
				table := cli.NewTable(os.Stdout, "ID", "URL", "VERSION", "STATE")
				for _, status := range statuses {
					state := table.Good("ok")
					if !status.Healthy {
						state = table.Bad(status.Problem)
					}
					table.Row(status.ID, status.URL, status.Version, state)
				}
				if err := table.Flush(); err != nil {
					return err
				}
			}

			required := cfg.Threshold
			if required == 0 {
				required = len(cfg.KeyServers)/2 + 1
			}
			if healthy < required {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
