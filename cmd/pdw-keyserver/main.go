// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Pdw-keyserver is one threshold key server. It holds an age identity,
// evaluates access predicates by dry-running authorization
// transactions against the ledger, and releases its key share for an
// envelope only when the predicate holds.
//
// In development the ledger is the snapshot the pdw CLI writes to its
// state directory; the server reloads it whenever it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/config"
	"github.com/bureau-foundation/pdw/lib/keyserver"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/process"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		showVersion bool
	)
	flags := pflag.NewFlagSet("pdw-keyserver", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "configuration file (default: $PDW_CONFIG)")
	flags.StringVar(&listen, "listen", "", "listen address (overrides key_server.listen)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("pdw-keyserver")
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.KeyServer.Listen
	}

	addresses, err := cli.ParseLedgerAddresses(cfg.Ledger)
	if err != nil {
		return err
	}

	keypair, err := sealed.LoadKeypair(cfg.KeyServer.Keypair)
	if err != nil {
		return err
	}
	defer keypair.Close()

	snapshotPath := cli.LedgerSnapshotPath(cfg)
	ledgerClient := newSnapshotLedger(snapshotPath, memledger.Config{
		PackageID:  addresses.PackageID,
		RegistryID: addresses.RegistryID,
		ClockID:    addresses.ClockID,
		Logger:     logger,
	})

	server, err := keyserver.New(keyserver.Config{
		ID:            cfg.KeyServer.ID,
		Keypair:       keypair,
		PackageID:     addresses.PackageID,
		Ledger:        ledgerClient,
		MaxSessionTTL: cfg.Session.MaxTTL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting pdw-keyserver",
		"version", version.Info(),
		"id", server.ID(),
		"public_key", server.PublicKey(),
		"package", addresses.PackageID.String(),
		"ledger_snapshot", snapshotPath,
	)

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- httpServer.Serve(listener)
	}()
	logger.Info("listening", "address", listener.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveDone:
		return fmt.Errorf("serving: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfig loads the configuration and checks the key server
// section.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var problems []error
	if cfg.KeyServer.ID == "" {
		problems = append(problems, errors.New("key_server.id is required"))
	}
	if cfg.KeyServer.Keypair == "" {
		problems = append(problems, errors.New("key_server.keypair is required"))
	}
	if cfg.KeyServer.Listen == "" {
		problems = append(problems, errors.New("key_server.listen is required"))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return cfg, nil
}
