// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authority"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/blobstore"
	"github.com/bureau-foundation/pdw/lib/config"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/keyserver"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/session"
	"github.com/bureau-foundation/pdw/lib/wallet"
)

// LedgerSnapshotName is the file name of the development ledger
// snapshot inside the state directory.
const LedgerSnapshotName = "ledger.cbor"

// ConfigParams is embedded in the parameter struct of every command
// that needs the wallet configuration.
type ConfigParams struct {
	ConfigPath string `flag:"config" desc:"configuration file (default: $PDW_CONFIG)"`
}

// LoadConfig loads and validates the configuration named by --config,
// falling back to PDW_CONFIG.
func (p *ConfigParams) LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if p.ConfigPath != "" {
		cfg, err = config.LoadFile(p.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LedgerAddresses holds the parsed ledger object references.
type LedgerAddresses struct {
	PackageID  address.Address
	RegistryID address.Address
	ClockID    address.Address
}

// ParseLedgerAddresses parses the configured package, registry and
// clock object IDs.
func ParseLedgerAddresses(cfg config.LedgerConfig) (LedgerAddresses, error) {
	var addresses LedgerAddresses
	var err error
	if addresses.PackageID, err = address.Parse(cfg.PackageID); err != nil {
		return LedgerAddresses{}, fmt.Errorf("ledger.package_id: %w", err)
	}
	if addresses.RegistryID, err = address.Parse(cfg.RegistryID); err != nil {
		return LedgerAddresses{}, fmt.Errorf("ledger.registry_id: %w", err)
	}
	if addresses.ClockID, err = address.Parse(cfg.ClockID); err != nil {
		return LedgerAddresses{}, fmt.Errorf("ledger.clock_id: %w", err)
	}
	return addresses, nil
}

// LedgerSnapshotPath returns the development ledger snapshot path for
// cfg.
func LedgerSnapshotPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.State, LedgerSnapshotName)
}

// OpenLedger loads the development ledger snapshot at path, or returns
// an empty ledger when no snapshot exists yet.
func OpenLedger(path string, ledgerConfig memledger.Config) (*memledger.Ledger, error) {
	loaded, err := memledger.Load(path, ledgerConfig)
	if errors.Is(err, os.ErrNotExist) {
		return memledger.New(ledgerConfig), nil
	}
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// Environment is the fully wired wallet stack one command runs
// against. Close releases it.
type Environment struct {
	Config    *config.Config
	Addresses LedgerAddresses
	Ledger    *memledger.Ledger
	Builder   *authtx.Builder
	Authority *authority.Threshold
	Sessions  *session.Store
	Wallet    *wallet.Client

	logger *slog.Logger
}

// Open wires the wallet stack described by cfg. Deprecated-mode
// transactions are reported through logger at Warn. A nil logger
// discards output.
func Open(cfg *config.Config, logger *slog.Logger) (*Environment, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	addresses, err := ParseLedgerAddresses(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	compression, err := envelope.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	ledgerClient, err := OpenLedger(LedgerSnapshotPath(cfg), memledger.Config{
		PackageID:  addresses.PackageID,
		RegistryID: addresses.RegistryID,
		ClockID:    addresses.ClockID,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	builder := authtx.NewBuilder(authtx.Config{
		PackageID:  addresses.PackageID,
		RegistryID: addresses.RegistryID,
		ClockID:    addresses.ClockID,
		Logger:     logger,
	})

	httpClient := &http.Client{Timeout: cfg.Timeouts.Authority}
	members := make([]authority.Member, len(cfg.KeyServers))
	for i, server := range cfg.KeyServers {
		members[i] = authority.Member{
			ID:        server.ID,
			PublicKey: server.PublicKey,
			Fetcher:   keyserver.NewClient(server.URL, httpClient),
		}
	}
	threshold, err := authority.NewThreshold(authority.Config{
		PackageID:   addresses.PackageID,
		Members:     members,
		Threshold:   cfg.Threshold,
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(session.Config{
		MaxTTL:    cfg.Session.MaxTTL,
		PackageID: addresses.PackageID,
		Logger:    logger,
	})

	client, err := wallet.New(wallet.Config{
		Authority:  threshold,
		Builder:    builder,
		Sessions:   sessions,
		Ledger:     ledgerClient,
		SessionTTL: cfg.Session.DefaultTTL,
		Timeouts: wallet.Timeouts{
			Session:   cfg.Timeouts.Session,
			Ledger:    cfg.Timeouts.Ledger,
			Authority: cfg.Timeouts.Authority,
		},
		Logger: logger,
	})
	if err != nil {
		sessions.Close()
		return nil, err
	}

	return &Environment{
		Config:    cfg,
		Addresses: addresses,
		Ledger:    ledgerClient,
		Builder:   builder,
		Authority: threshold,
		Sessions:  sessions,
		Wallet:    client,
		logger:    logger,
	}, nil
}

// SaveLedger writes the development ledger back to its snapshot so key
// servers and later commands see submitted transactions.
func (e *Environment) SaveLedger() error {
	path := LedgerSnapshotPath(e.Config)
	if err := e.Ledger.Save(path); err != nil {
		return err
	}
	e.logger.Debug("ledger snapshot saved", "path", path)
	return nil
}

// OpenBlobstore opens the configured blob store. The caller closes it
// with the returned closer.
func (e *Environment) OpenBlobstore() (blobstore.Store, func() error, error) {
	return blobstore.Open(blobstore.Config{
		Kind:        e.Config.Blobstore.Kind,
		Path:        e.Config.Paths.Blobs,
		RedisAddr:   e.Config.Blobstore.RedisAddr,
		RedisPrefix: e.Config.Blobstore.RedisPrefix,
	})
}

// Close releases the session store.
func (e *Environment) Close() error {
	return e.Sessions.Close()
}
