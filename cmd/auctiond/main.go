// Command auctiond serves the escrow auction engine over TCP or vsock.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/journal"
	"github.com/cloudx-io/escrowauction/receipt"
)

func main() {
	configPath := flag.String("config", os.Getenv(envPrefix+"CONFIG"), "Path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "auctiond: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, store, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server, err := NewServer(cfg, logger, core.SystemClock, store, signer)
	if err != nil {
		closeJournal(store, logger)
		return err
	}
	listener, err := server.Listen(ctx)
	if err != nil {
		closeJournal(store, logger)
		return err
	}

	// Serve returns only after in-flight connections finish, so every
	// committed event is journaled before the journal closes.
	err = server.Serve(ctx, listener)
	logger.Info().Msg("connections drained, shutting down")
	closeJournal(store, logger)
	return err
}

// openBackends initializes the receipt signer and the optional journal
// concurrently. On error nothing is left open.
func openBackends(ctx context.Context, cfg Config, logger zerolog.Logger) (receipt.Signer, *journal.Store, error) {
	var (
		signer receipt.Signer
		store  *journal.Store
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		signer, err = newSigner(cfg, logger)
		return err
	})
	if cfg.JournalPath != "" {
		g.Go(func() error {
			opened, err := journal.Open(gctx, cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			store = opened
			logger.Info().Str("path", cfg.JournalPath).Msg("event journal opened")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeJournal(store, logger)
		return nil, nil, err
	}
	return signer, store, nil
}

func closeJournal(store *journal.Store, logger zerolog.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close journal")
	}
}

// newSigner builds the receipt signer for cfg.SignerMode.
func newSigner(cfg Config, logger zerolog.Logger) (receipt.Signer, error) {
	switch cfg.SignerMode {
	case receipt.ModeNitro:
		signer, err := receipt.OpenNitroSigner()
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("receipts attested by the Nitro Secure Module")
		return signer, nil
	default:
		if cfg.SigningKeyFile == "" {
			signer, err := receipt.NewKeySigner(cfg.ModuleID)
			if err != nil {
				return nil, err
			}
			logger.Warn().Msg("no signing_key_file configured, receipts are signed with an ephemeral key")
			return signer, nil
		}
		pemBytes, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		signer, err := receipt.LoadKeySigner(cfg.ModuleID, pemBytes)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("key_file", cfg.SigningKeyFile).Msg("receipt signing key loaded")
		return signer, nil
	}
}
