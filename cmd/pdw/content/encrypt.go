// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/secret"
)

type encryptParams struct {
	cli.ConfigParams
	cli.JSONOutput
	Owner     string `flag:"owner" desc:"identity to encrypt under (required)"`
	In        string `flag:"in,i" desc:"plaintext file (default: stdin)"`
	Out       string `flag:"out,o" desc:"ciphertext file"`
	Store     bool   `flag:"store" desc:"put the ciphertext in the blob store"`
	Threshold int    `flag:"threshold,t" desc:"key servers required to decrypt (default: configured)"`
	BackupKey string `flag:"backup-key" desc:"write the envelope's data key here, hex encoded"`
}

// encryptResult is the JSON output of "pdw encrypt".
type encryptResult struct {
	Owner       string `json:"owner"`
	Fingerprint string `json:"fingerprint"`
	Blob        string `json:"blob,omitempty"`
	Out         string `json:"out,omitempty"`
	Size        int    `json:"size"`
}

// EncryptCommand returns "pdw encrypt".
func EncryptCommand() *cli.Command {
	var params encryptParams
	return &cli.Command{
		Name:    "encrypt",
		Summary: "Encrypt data under a wallet identity",
		Description: `Encrypt plaintext under an owner identity with the configured key
servers. Decryption later requires a threshold of those servers to
approve the requester against the ledger's grants.

--backup-key writes the envelope's data key. It decrypts this one
ciphertext without any key server; store it like a password.`,
		Usage: "pdw encrypt --owner <identity> (--out <file> | --store) [flags]",
		Examples: []cli.Example{
			{Description: "Encrypt a file into the blob store", Command: "pdw encrypt --owner 0xa11ce --in notes.txt --store"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("encrypt", &params) },
		Run: func(args []string) error {
			owner, err := cli.ParseAddress("owner", params.Owner)
			if err != nil {
				return err
			}
			if params.Out == "" && !params.Store {
				return errors.New("one of --out and --store is required")
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			plaintext, err := readInput(params.In)
			if err != nil {
				return err
			}
			defer secret.Zero(plaintext)

			environment, err := cli.Open(cfg, cli.NewCommandLogger().With("command", "encrypt"))
			if err != nil {
				return err
			}
			defer environment.Close()

			ctx := context.Background()
			encrypted, err := environment.Wallet.Encrypt(ctx, plaintext, owner, params.Threshold)
			if err != nil {
				return err
			}
			defer encrypted.BackupKey.Close()

			result := encryptResult{
				Owner:       owner.String(),
				Fingerprint: encrypted.Fingerprint.String(),
				Out:         params.Out,
				Size:        len(encrypted.Ciphertext),
			}
			if params.BackupKey != "" {
				if err := secret.WriteHexFile(params.BackupKey, encrypted.BackupKey.Bytes()); err != nil {
					return err
				}
			}
			if params.Out != "" {
				if err := os.WriteFile(params.Out, encrypted.Ciphertext, 0644); err != nil {
					return fmt.Errorf("writing ciphertext: %w", err)
				}
			}
			if params.Store {
				store, closeStore, err := environment.OpenBlobstore()
				if err != nil {
					return err
				}
				defer closeStore()
				id, err := store.Put(ctx, encrypted.Ciphertext)
				if err != nil {
					return err
				}
				result.Blob = id.String()
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}
			if result.Blob != "" {
				fmt.Printf("blob %s\n", result.Blob)
			}
			fmt.Printf("fingerprint %s\n", result.Fingerprint)
			return nil
		},
	}
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}
