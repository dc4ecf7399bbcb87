package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/galyarder/galyarder-store/internal/config"
	"github.com/galyarder/galyarder-store/internal/db"
	"github.com/galyarder/galyarder-store/internal/server"
	"github.com/galyarder/galyarder-store/internal/vault"
)

var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:     "galyarder-stored",
	Version: version,
	Short:   "Hosted backend for the GalyarderOS data layer",
	Long: `galyarder-stored serves the REST, auth and realtime endpoints the data layer
syncs against, backed by a single SQLite file.

Settings come from GALYARDER_* environment variables or --config:
  GALYARDER_PORT          listen port (default 7001)
  GALYARDER_DB_PATH       database file (default ./data/galyarder.db)
  GALYARDER_REQUIRE_AUTH  gate /rest and /realtime behind a session
  GALYARDER_TLS           serve HTTPS (self-signed unless tls_cert/tls_key are set)
  GALYARDER_LOG_FILE      rotate logs into this file instead of stderr`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(config.New(), configFile)
	if err != nil {
		return err
	}
	logger := config.NewLogger("[galyarder-stored] ", cfg.LogFile)
	logger.Printf("Starting Galyarder Store Daemon %s...", version)

	// 1. Open the database
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	logger.Printf("Database ready at %s", store.Path())

	// 2. Build routes
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(store, server.Config{
		RequireAuth: cfg.RequireAuth,
		SessionTTL:  cfg.SessionTTL,
		Logger:      config.NewLogger("[server] ", cfg.LogFile),
	})

	// 3. Setup TLS
	if cfg.TLS {
		cert, err := loadCertificate(cfg)
		if err != nil {
			return err
		}
		router.SetCertificate(cert)
		logger.Println("TLS encryption enabled.")
	}

	// 4. Serve until a signal arrives
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Println("Shutdown signal received. Draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Stop(shutdownCtx); err != nil {
		logger.Printf("Warning: shutdown incomplete: %v", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Println("Shutdown complete.")
	return nil
}

func loadCertificate(cfg *config.Config) (tls.Certificate, error) {
	if cfg.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return cert, nil
	}
	cert, err := vault.GenerateSelfSignedCert()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate TLS certificate: %w", err)
	}
	return cert, nil
}
