// Package main is the entry point for the skillboard server and its tools.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (env vars, an optional config file, flags)
// 2. Create dependencies (logger, tracing, database connections)
// 3. Hand off to the packages that do the work
//
// SUBCOMMANDS:
// One binary, several jobs, using spf13/cobra:
//
//	skillboard serve              → run the HTTP API
//	skillboard seed --extra 20    → create demo accounts and random contributors
//
// Both read the same configuration, so `seed` writes to the database `serve`
// will read.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/config"
	"github.com/sakif/skillboard/internal/ledger"
	sqliteRepo "github.com/sakif/skillboard/internal/repository/sqlite"
	"github.com/sakif/skillboard/internal/seed"
	"github.com/sakif/skillboard/internal/server"
	"github.com/sakif/skillboard/internal/service"
	"github.com/sakif/skillboard/internal/telemetry"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "skillboard:", err)
		os.Exit(1)
	}
}

var (
	rootCmd = &cobra.Command{
		Use:           "skillboard",
		Short:         "Contributor leaderboards: score ledger, rankings and live feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.New()
			if configFile != "" {
				if err := cfg.ReadFile(configFile); err != nil {
					return err
				}
			}
			if dbPath != "" {
				cfg.Set("DB_PATH", dbPath)
			}
			logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: cfg.LogLevel(),
			}))
			return nil
		},
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Create the demo accounts and optional random contributors",
		RunE:  runSeed,
	}

	// Flags
	configFile string
	dbPath     string
	extra      int
	seedValue  uint64

	cfg    *config.Config
	logger *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (yaml, toml or json). Environment variables still win")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path. Overrides DB_PATH")
	seedCmd.Flags().IntVar(&extra, "extra", 0, "Number of random contributors to create, each with projects")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 0, "Random seed for --extra. 0 picks one from the clock")
	rootCmd.AddCommand(serveCmd, seedCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := ensureDBDir(cfg.DBPath()); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName(), cfg.OTLPEndpoint())
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	srv, err := server.New(server.Config{
		Port:               cfg.Port(),
		DBPath:             cfg.DBPath(),
		JWTSecret:          cfg.JWTSecret(),
		GitHubClientID:     cfg.GitHubClientID(),
		GitHubClientSecret: cfg.GitHubClientSecret(),
		GitHubCallbackURL:  cfg.GitHubCallbackURL(),
		LeaderboardCeiling: cfg.LeaderboardCeiling(),
		SubscriberBuffer:   cfg.SubscriberBuffer(),
		RequireKnownUser:   cfg.RequireKnownUser(),
		StoreTimeout:       cfg.StoreTimeout(),
		RateLimitRPS:       cfg.RateLimitRPS(),
		RateLimitBurst:     cfg.RateLimitBurst(),
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := ensureDBDir(cfg.DBPath()); err != nil {
		return err
	}
	db, err := sqliteRepo.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// No feed here: nobody is watching, and ranks are recomputed on read.
	l := ledger.New(db, db, ledger.Config{
		RequireKnownUser: true,
		StoreTimeout:     cfg.StoreTimeout(),
	}, nil, logger)

	if seedValue == 0 {
		seedValue = uint64(time.Now().UnixNano())
	}
	s := seed.New(db, auth.NewPasswordService(),
		service.NewProjectService(db, db, l, logger),
		service.NewBadgeService(db, db, l, logger),
		service.NewProblemService(db, db, db, logger),
		gofakeit.New(seedValue), logger)

	sum, err := s.Run(ctx, extra)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d accounts, %d contributors, %d projects, %d badges, %d problems (password %q, seed %d)\n",
		sum.Accounts, sum.Extra, sum.Projects, sum.Badges, sum.Problems, seed.DemoPassword, seedValue)
	return nil
}

// ensureDBDir creates the database's parent directory (like `mkdir -p`).
func ensureDBDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
