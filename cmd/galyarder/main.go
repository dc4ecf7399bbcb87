package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/galyarder/galyarder-store/internal/config"
	"github.com/galyarder/galyarder-store/pkg/schema"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

var version = "dev"

var (
	// Global flags
	configFile string
	offline    bool
	verbose    bool

	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:     "galyarder",
	Version: version,
	Short:   "Local-first GalyarderOS data layer",
	Long: `galyarder reads and writes GalyarderOS tables through the local-first data layer.

Writes go to the hosted backend when it is reachable and are queued on this
device otherwise; queued writes replay automatically once the backend is back.

Settings come from GALYARDER_* environment variables or --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Never contact the backend; queue writes locally")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log data layer activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "auth", Title: "Account:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.New(), configFile)
	if err != nil {
		return nil, err
	}
	if offline {
		cfg.Offline = true
	}
	return cfg, nil
}

// openLayer assembles the data layer from config. The caller closes it.
func openLayer(ctx context.Context) (*sdk.DataLayer, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	sc := cfg.SDKConfig()
	switch {
	case cfg.LogFile != "":
		sc.Logger = config.NewLogger("[galyarder] ", cfg.LogFile)
	case verbose:
		sc.Logger = log.New(os.Stderr, "[galyarder] ", log.LstdFlags)
	default:
		sc.Logger = log.New(io.Discard, "", 0)
	}

	layer, err := sdk.Open(ctx, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data layer: %w", err)
	}
	return layer, cfg, nil
}

// withLayer opens the data layer around fn.
func withLayer(cmd *cobra.Command, fn func(ctx context.Context, layer *sdk.DataLayer, cfg *config.Config) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	layer, cfg, err := openLayer(ctx)
	if err != nil {
		return err
	}
	defer layer.Close()
	return fn(ctx, layer, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseRecord accepts a JSON object argument.
func parseRecord(arg string) (schema.Record, error) {
	var rec schema.Record
	if err := json.Unmarshal([]byte(arg), &rec); err != nil || rec == nil {
		return nil, fmt.Errorf("expected a JSON object, got %q", arg)
	}
	return rec, nil
}

func parseFilters(where string) (schema.Filters, error) {
	if where == "" {
		return nil, nil
	}
	var f schema.Filters
	if err := json.Unmarshal([]byte(where), &f); err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	return f, nil
}
