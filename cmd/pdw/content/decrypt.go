// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authority"
	"github.com/bureau-foundation/pdw/lib/contenthash"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/secret"
	"github.com/bureau-foundation/pdw/lib/wallet"
)

// Exit codes of "pdw decrypt".
const (
	exitDenied      = 2
	exitTimeout     = 3
	exitUnavailable = 4
)

type decryptParams struct {
	cli.ConfigParams
	cli.KeyParams
	In        string        `flag:"in,i" desc:"ciphertext file"`
	Blob      string        `flag:"blob" desc:"ciphertext blob ID in the blob store"`
	Out       string        `flag:"out,o" desc:"plaintext file (default: stdout)"`
	Mode      string        `flag:"mode,m" desc:"wallet, app or legacy" default:"wallet"`
	App       string        `flag:"app" desc:"application ID (app mode)"`
	Owner     string        `flag:"owner" desc:"expected content owner (default: from the ciphertext)"`
	Scope     string        `flag:"scope,s" desc:"required scope" default:"read"`
	TTL       time.Duration `flag:"ttl" desc:"session lifetime (default: configured)"`
	BackupKey string        `flag:"backup-key" desc:"decrypt with a backup data key instead of the key servers"`
}

// DecryptCommand returns "pdw decrypt".
func DecryptCommand() *cli.Command {
	var params decryptParams
	return &cli.Command{
		Name:    "decrypt",
		Summary: "Decrypt data you own or were granted",
		Description: `Decrypt a ciphertext through the key servers. The signing key opens a
session and the key servers approve it against the ledger.

Modes:
  wallet  the key's wallet holds a grant over the content (default)
  app     the key's wallet owns the content and --app holds a grant
  legacy  the key's wallet owns the content

The app and legacy modes are deprecated and logged as such.

With --backup-key the data key written by "pdw encrypt --backup-key"
decrypts the ciphertext locally; no key server or key is involved.`,
		Usage: "pdw decrypt (--in <file> | --blob <id>) --key <key> [flags]",
		Examples: []cli.Example{
			{Description: "Read a shared document", Command: "pdw decrypt --key reader.key --blob 4f1c... --out notes.txt"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("decrypt", &params) },
		Run: func(args []string) error {
			if (params.In == "") == (params.Blob == "") {
				return errors.New("exactly one of --in and --blob is required")
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "decrypt")
			environment, err := cli.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer environment.Close()

			ctx := context.Background()
			ciphertext, err := loadCiphertext(ctx, environment, params.In, params.Blob)
			if err != nil {
				return err
			}

			var plaintext []byte
			if params.BackupKey != "" {
				plaintext, err = openWithBackup(ciphertext, params.BackupKey)
				if err != nil {
					return err
				}
			} else {
				request, closeSigner, err := decryptRequest(&params)
				if err != nil {
					return err
				}
				defer closeSigner()
				plaintext, err = environment.Wallet.Decrypt(ctx, ciphertext, request)
				if err != nil {
					return exitFor(logger, err)
				}
			}
			defer secret.Zero(plaintext)

			if params.Out == "" {
				_, err := os.Stdout.Write(plaintext)
				return err
			}
			return os.WriteFile(params.Out, plaintext, 0600)
		},
	}
}

// decryptRequest builds the wallet request from the mode flags. The
// returned function closes the loaded key.
func decryptRequest(params *decryptParams) (wallet.DecryptRequest, func(), error) {
	scope, err := grant.ParseScope(params.Scope)
	if err != nil {
		return wallet.DecryptRequest{}, nil, err
	}
	var owner address.Address
	if params.Owner != "" {
		if owner, err = address.Parse(params.Owner); err != nil {
			return wallet.DecryptRequest{}, nil, fmt.Errorf("--owner: %w", err)
		}
	}
	key, err := params.LoadSigner()
	if err != nil {
		return wallet.DecryptRequest{}, nil, err
	}
	closeSigner := func() { key.Close() }

	request := wallet.DecryptRequest{Owner: owner, Scope: scope, Signer: key, TTL: params.TTL}
	switch params.Mode {
	case "wallet":
		request.Requestor = key.Address()
	case "app":
		if params.App == "" {
			closeSigner()
			return wallet.DecryptRequest{}, nil, errors.New("--app is required in app mode")
		}
		request.AppID = params.App
	case "legacy":
	default:
		closeSigner()
		return wallet.DecryptRequest{}, nil, fmt.Errorf("--mode must be wallet, app or legacy, got %q", params.Mode)
	}
	return request, closeSigner, nil
}

func loadCiphertext(ctx context.Context, environment *cli.Environment, path, blob string) ([]byte, error) {
	if path != "" {
		return readInput(path)
	}
	id, err := contenthash.Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("--blob: %w", err)
	}
	store, closeStore, err := environment.OpenBlobstore()
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return store.Get(ctx, id)
}

// openWithBackup decrypts ciphertext locally with a backup data key.
func openWithBackup(ciphertext []byte, keyPath string) ([]byte, error) {
	parsed, err := envelope.Parse(ciphertext)
	if err != nil {
		return nil, err
	}
	dataKey, err := secret.ReadHexFile(keyPath, envelope.KeySize)
	if err != nil {
		return nil, err
	}
	defer dataKey.Close()
	return parsed.Open(dataKey)
}

// exitFor logs a decryption failure and returns the exit error for
// its class.
func exitFor(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, authority.ErrDenied):
		logger.Error("access denied", "error", err)
		return &cli.ExitError{Code: exitDenied}
	case errors.Is(err, authority.ErrTimeout):
		logger.Error("decryption timed out", "error", err)
		return &cli.ExitError{Code: exitTimeout}
	case errors.Is(err, authority.ErrUnavailable):
		logger.Error("key servers unavailable", "error", err)
		return &cli.ExitError{Code: exitUnavailable}
	default:
		return err
	}
}
