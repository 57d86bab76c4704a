// main.go - Confidential fractional-ownership ledger runner.
//
// Builds a fresh ledger around a Confidential Value Engine, replays a script
// of participant and administrator submissions against it and prints the
// outcome of every step, every requested decryption and the final catalog.
//
// Usage:
//   ledgerd [-config ledgerd.json] [-script steps.json]
//
// Architecture:
//   - Principal balances live in a JSON wallet file that survives runs
//   - Accepted operations are appended to a SQLite journal (handles only, no plaintext)
//   - The built-in script walks through listing, commitment and every rejection path

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"confidential-ledger/internal/cve"
	"confidential-ledger/internal/journal"
	"confidential-ledger/internal/ledger"
	"confidential-ledger/internal/wallet"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to JSON config file (written with defaults when missing)")
	scriptPath := flag.String("script", "", "path to JSON script; the built-in scenario runs when empty")
	flag.Parse()

	if err := run(*configPath, *scriptPath); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, scriptPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if scriptPath != "" {
		cfg.ScriptPath = scriptPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, auditPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := setupTracing(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	steps := DefaultScript()
	if cfg.ScriptPath != "" {
		if steps, err = LoadScript(cfg.ScriptPath); err != nil {
			return err
		}
	}

	engine, err := cve.New(
		cve.WithPlaintextBound(cfg.PlaintextBound),
		cve.WithLogger(logger.With().Str("component", "cve").Logger()),
	)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	book, err := openBook(cfg.WalletPath)
	if err != nil {
		return err
	}

	opts := []ledger.Option{ledger.WithLogger(logger.With().Str("component", "ledger").Logger())}
	var store *journal.Store
	if cfg.JournalPath != "" {
		store, err = journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
		opts = append(opts, ledger.WithJournal(store))
	}

	l, admin, err := ledger.New(ledger.Config{
		Admin:      ledger.Principal(cfg.Admin),
		ValueScale: cfg.ValueScale,
	}, engine.Contract(cfg.ContractID), book, opts...)
	if err != nil {
		return err
	}

	health := NewHealthChecker(version)
	health.RegisterComponent("engine", engine.Ping)
	if store != nil {
		health.RegisterComponent("journal", func() error {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return store.Ping(pctx)
		})
	}
	if h := health.CheckHealth(); h.OverallStatus != Healthy {
		for _, c := range h.Components {
			logger.Error().Str("component", c.Name).Str("status", string(c.Status)).Msg(c.Message)
		}
		return errors.New("startup health check failed")
	}

	logger.Info().
		Str("version", version).
		Str("admin", cfg.Admin).
		Uint64("value_scale", cfg.ValueScale).
		Int("steps", len(steps)).
		Msg("ledger ready")

	metrics := NewMetricsCollector()
	report, err := NewRunner(cfg, logger, engine, book, l, admin, metrics).Run(ctx, steps)
	if err != nil {
		return err
	}
	if err := report.Render(os.Stdout); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if store != nil {
		if n, err := store.Count(ctx); err != nil {
			logger.Warn().Err(err).Msg("journal count failed")
		} else {
			logger.Info().Int("entries", n).Str("path", cfg.JournalPath).Msg("journal")
		}
	}
	if cfg.WalletPath != "" {
		if err := book.Save(cfg.WalletPath); err != nil {
			return fmt.Errorf("failed to save wallets: %w", err)
		}
	}
	logger.Debug().Interface("metrics", metrics.GetMetricsSummary()).Msg("metrics summary")

	if n := report.Failures(); n > 0 {
		return fmt.Errorf("%d step(s) did not match the script", n)
	}
	return nil
}

func openBook(path string) (*wallet.Book, error) {
	if path == "" {
		return wallet.NewBook(), nil
	}
	book, err := wallet.LoadBook(path)
	if errors.Is(err, os.ErrNotExist) {
		return wallet.NewBook(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	return book, nil
}
