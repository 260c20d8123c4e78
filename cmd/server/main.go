/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the invoice draft engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Set up logging
  3. Initialize SQLite store, optionally importing rulesets
  4. Start the invoice directory watcher when BILLING_INVOICE_DIR is set
  5. Create planner, API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides BILLING_ADDR)
  -db      SQLite database path (overrides BILLING_DB)
           Use ":memory:" for in-memory database
  -import  JSON file with an array of rulesets to upsert at startup

GRACEFUL SHUTDOWN:
  The server and the directory watcher run in one errgroup. On SIGINT,
  SIGTERM or either of them failing:
  1. Stop the directory watcher
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/invoices.db" -import=rulesets.json
  BILLING_INVOICE_DIR=~/faktury ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - planner/planner.go: Draft session
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warp/invoice-engine/api"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/config"
	"github.com/warp/invoice-engine/factory"
	"github.com/warp/invoice-engine/logger"
	"github.com/warp/invoice-engine/planner"
	"github.com/warp/invoice-engine/store/sqlite"
	"github.com/warp/invoice-engine/watermark"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the server and blocks until shutdown. Everything it opens is
// closed before it returns.
func run(args []string) error {
	// Flags
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	port := flags.Int("port", 0, "HTTP server port (overrides BILLING_ADDR)")
	dbPath := flags.String("db", "", "SQLite database path (overrides BILLING_DB)")
	importPath := flags.String("import", "", "JSON file with rulesets to import")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if err := logger.Setup(cfg.LogConfig()); err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	if *importPath != "" {
		n, err := importRulesets(context.Background(), store, *importPath)
		if err != nil {
			return fmt.Errorf("import rulesets from %s: %w", *importPath, err)
		}
		log.Info().Int("rulesets", n).Str("file", *importPath).Msg("rulesets imported")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	opts := []planner.Option{
		planner.WithLogger(logger.WithComponent("planner")),
		planner.WithCalculator(billing.NewCalculator(billing.NewRandomPicker(cfg.Seed))),
	}

	if cfg.InvoiceDir != "" {
		watcher, err := watermark.NewWatcher(cfg.InvoiceDir, logger.WithComponent("watermark"))
		if err != nil {
			return fmt.Errorf("watch invoice directory %s: %w", cfg.InvoiceDir, err)
		}
		defer watcher.Close()

		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("invoice directory watcher: %w", err)
			}
			return nil
		})
		opts = append(opts, planner.WithWatermarkSource(watcher))
	}

	plans := planner.New(store, opts...)
	handler := api.NewHandler(store, plans, logger.WithComponent("api"))
	router := api.NewRouter(handler, cfg.RateLimit)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// importRulesets upserts every ruleset of a JSON array file, keeping the
// file's order for new entries.
func importRulesets(ctx context.Context, store *sqlite.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	rulesets, err := factory.NewRulesetFactory().ParseRulesets(data)
	if err != nil {
		return 0, err
	}
	for _, rs := range rulesets {
		if err := store.SaveRuleset(ctx, rs); err != nil {
			return 0, fmt.Errorf("save ruleset %s: %w", rs.ID, err)
		}
	}
	return len(rulesets), nil
}
