// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/signer"
)

type keygenParams struct {
	cli.JSONOutput
	Out   string `flag:"out,o" desc:"key file to write (required)"`
	Force bool   `flag:"force" desc:"overwrite an existing key file"`
}

// keygenResult is the JSON output of "pdw keygen".
type keygenResult struct {
	Address string `json:"address"`
	Path    string `json:"path"`
}

// KeygenCommand returns "pdw keygen".
func KeygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a wallet signing key",
		Description: `Generate an Ed25519 wallet signing key and write its seed, hex
encoded, to --out with mode 0600. The wallet address is printed.

The key signs session certificates and ledger transactions. Anyone
holding the file controls the wallet.`,
		Usage: "pdw keygen --out <path> [flags]",
		Examples: []cli.Example{
			{Description: "Create a key for the primary wallet", Command: "pdw keygen --out ~/.local/share/pdw/state/wallet.key"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("keygen", &params) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.Out == "" {
				return errors.New("--out is required")
			}
			if !params.Force {
				if _, err := os.Stat(params.Out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
				}
			}

			key, err := signer.Generate()
			if err != nil {
				return err
			}
			defer key.Close()
			if err := key.Save(params.Out); err != nil {
				return err
			}

			result := keygenResult{Address: key.Address().String(), Path: params.Out}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Println(result.Address)
			return nil
		},
	}
}
