package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/floormgmt/instruct/internal/core/api"
	"github.com/floormgmt/instruct/internal/core/auth"
	"github.com/floormgmt/instruct/internal/core/config"
	"github.com/floormgmt/instruct/internal/core/db"
	"github.com/floormgmt/instruct/internal/core/server"
	"github.com/floormgmt/instruct/internal/core/store"
	"github.com/floormgmt/instruct/internal/engine"
	"github.com/floormgmt/instruct/internal/logger"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP rule service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP server host")
	serveCmd.Flags().Int("port", 0, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, st := range statuses {
		if !st.Applied {
			return fmt.Errorf("migration %s not applied - run 'instruct migrate' first", st.ID)
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		log.Warn("no HMAC secrets configured, API authentication disabled")
	}
	authenticator := auth.NewAuthenticator(secrets, queries)

	st := store.New(queries)

	eng := engine.New(st, engine.Config{
		CacheTTL:       cfg.CacheTTL,
		WebhookTimeout: cfg.WebhookTimeout,
		FailOpen:       cfg.FailOpen(),
	}, nil, nil, nil, log)

	service := api.NewService(eng, st, authenticator, log)

	httpServer, err := server.NewHTTPServer(cfg, service.Router(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Infow("starting instruct rule service",
		"version", Version, "host", cfg.Host, "port", cfg.Port,
		"fail_mode", cfg.FailMode)

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}
