/*
main.go - Application entry point

PURPOSE:
  Starts the workforce engine HTTP server, or applies database migrations.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve     Run the HTTP API (default when no command is given)
  migrate   Open the database, apply pending migrations, print the version

STARTUP SEQUENCE (serve):
  1. Load YAML config (flags override file values)
  2. Build the zap logger
  3. Open SQLite store (migrations run on open)
  4. Build the site policy from the config
  5. Start the event dispatcher
  6. Wire handler and router, start the server

COMMAND-LINE FLAGS:
  --config  Config file (default: workforce.yaml, optional)
  --port    HTTP server port, overrides server.port
  --db      SQLite database path, overrides database.path
            Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain queued events
  4. Close database connection

EXAMPLES:
  ./server serve --db="./data/workforce.db"
  ./server serve --config=site.yaml --port=3000
  ./server migrate --db="./data/workforce.db"

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Config file layout
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/api"
	"github.com/warp/workforce-engine/config"
	"github.com/warp/workforce-engine/factory"
	"github.com/warp/workforce-engine/logging"
	"github.com/warp/workforce-engine/notify"
	"github.com/warp/workforce-engine/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

var (
	configPath string
	portFlag   int
	dbFlag     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "workforce-engine",
		Short:        "Workforce scheduling and timesheet engine",
		Long:         `Books workers and materials onto sites, detects double-bookings, and turns attendance into weekly timesheets.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "HTTP server port")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger.Named("sqlite")))
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.SchemaVersion()
			if err != nil {
				return err
			}
			logger.Info("database migrated",
				zap.String("path", cfg.Database.Path),
				zap.Int64("version", version),
			)
			return nil
		},
	}
}

// setup loads the config, applies flag overrides and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	if dbFlag != "" {
		cfg.Database.Path = dbFlag
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger.Named("sqlite")))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	policy, err := factory.NewPolicyFactory().FromJSON(cfg.Policy)
	if err != nil {
		return err
	}
	logger.Info("site policy loaded",
		zap.String("policy_id", string(policy.ID)),
		zap.Stringer("overtime_threshold", policy.OvertimeThreshold.Value),
		zap.Bool("strict_conflicts", policy.StrictConflicts),
	)

	dispatcher := notify.NewDispatcher(logger.Named("notify"), cfg.Notifications.BufferSize,
		notify.NewLogSink(logger.Named("events")),
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	handler := api.NewHandler(store, *policy, dispatcher, logger)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("database", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped", zap.Int64("events_dropped", dispatcher.Dropped()))
	return nil
}
