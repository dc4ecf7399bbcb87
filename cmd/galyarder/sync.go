package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/galyarder/galyarder-store/internal/config"
	localcache "github.com/galyarder/galyarder-store/internal/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

var (
	watchWhere   string
	migrateFrom  string
	migrateTo    string
	migrateToDir string
)

var pendingCmd = &cobra.Command{
	Use:     "pending",
	GroupID: "sync",
	Short:   "Show writes queued on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			pending, err := layer.Pending()
			if err != nil {
				return err
			}
			if pending == nil {
				pending = []schema.PendingMutation{}
			}
			return printJSON(cmd.OutOrStdout(), pending)
		})
	},
}

var replayCmd = &cobra.Command{
	Use:     "replay",
	GroupID: "sync",
	Short:   "Push queued writes to the backend now",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			if !layer.Online() {
				_, _ = warningColor.Fprintln(cmd.ErrOrStderr(), "Backend unreachable; writes stay queued.")
				return printJSON(cmd.OutOrStdout(), schema.ReplayReport{})
			}
			report := layer.ReplayPendingMutations(ctx)
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

type statusReport struct {
	Online    bool         `json:"online"`
	RemoteURL string       `json:"remote_url,omitempty"`
	Cache     string       `json:"cache"`
	CacheDir  string       `json:"cache_dir"`
	Encrypted bool         `json:"encrypted"`
	Pending   int          `json:"pending"`
	User      *schema.User `json:"user,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, cache and queue state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, cfg *config.Config) error {
			pending, err := layer.Pending()
			if err != nil {
				return err
			}
			st := statusReport{
				Online:    layer.Online(),
				RemoteURL: cfg.RemoteURL,
				Cache:     cfg.CacheBackend,
				CacheDir:  cfg.CacheDir,
				Encrypted: cfg.VaultKey != "",
				Pending:   len(pending),
			}
			if s, err := layer.Session(); err == nil && s != nil {
				st.User = s.User
			}
			return printJSON(cmd.OutOrStdout(), st)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch <table>",
	GroupID: "sync",
	Short:   "Stream realtime changes for a table until interrupted",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := parseFilters(watchWhere)
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sub, err := layer.Subscribe(ctx, args[0], func(ev schema.ChangeEvent) {
				_ = printJSON(out, ev)
			}, filters)
			if err != nil {
				return err
			}
			if sub == nil {
				return fmt.Errorf("realtime is unavailable while offline")
			}
			defer sub.Unsubscribe()

			_, _ = successColor.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", args[0])
			<-ctx.Done()
			return nil
		})
	},
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "sync",
	Short:   "Manage the device cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every cached table, queued write and session to another backend",
	Long: `Copy the device cache between backends, e.g. from the JSON file cache to badger.

Both caches are sealed with the configured vault key when one is set. The
source is left untouched; point cache_backend at the destination afterwards.`,
	Example: `  galyarder cache migrate --from file --to badger`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if migrateFrom == "" {
			migrateFrom = cfg.CacheBackend
		}
		dstDir := migrateToDir
		if dstDir == "" {
			dstDir = cfg.CacheDir
		}
		if migrateFrom == migrateTo && dstDir == cfg.CacheDir {
			return fmt.Errorf("source and destination are the same cache")
		}
		key := cfg.SDKConfig().VaultKey

		src, err := localcache.OpenCache(localcache.Backend(migrateFrom), cfg.CacheDir, key)
		if err != nil {
			return fmt.Errorf("failed to open source cache: %w", err)
		}
		defer src.Close()

		dst, err := localcache.OpenCache(localcache.Backend(migrateTo), dstDir, key)
		if err != nil {
			return fmt.Errorf("failed to open destination cache: %w", err)
		}
		defer dst.Close()

		n, err := localcache.Migrate(src, dst)
		if err != nil {
			return err
		}
		_, _ = successColor.Fprintf(cmd.OutOrStdout(), "Migrated %d keys from %s to %s\n", n, migrateFrom, migrateTo)
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchWhere, "where", "", "JSON object of field equality filters")

	cacheMigrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Source backend (default: cache_backend)")
	cacheMigrateCmd.Flags().StringVar(&migrateTo, "to", "badger", "Destination backend: memory, file or badger")
	cacheMigrateCmd.Flags().StringVar(&migrateToDir, "to-dir", "", "Destination cache directory (default: cache_dir)")
	cacheCmd.AddCommand(cacheMigrateCmd)

	rootCmd.AddCommand(pendingCmd, replayCmd, statusCmd, watchCmd, cacheCmd)
}
