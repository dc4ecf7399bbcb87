package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/galyarder/galyarder-store/internal/config"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

var readWhere string

var createCmd = &cobra.Command{
	Use:     "create <table> <json>",
	GroupID: "records",
	Short:   "Insert a record",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseRecord(args[1])
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			rec, err := layer.Create(ctx, args[0], data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		})
	},
}

var readCmd = &cobra.Command{
	Use:     "read <table>",
	GroupID: "records",
	Short:   "List records, optionally filtered by --where",
	Example: `  galyarder read habits --where '{"category":"health"}'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := parseFilters(readWhere)
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			rows, err := layer.Read(ctx, args[0], filters)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <table> <id> <json>",
	GroupID: "records",
	Short:   "Merge fields into a record",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		partial, err := parseRecord(args[2])
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			rec, err := layer.Update(ctx, args[0], args[1], partial)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <table> <id>",
	GroupID: "records",
	Short:   "Delete a record",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			if _, err := layer.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		})
	},
}

func init() {
	readCmd.Flags().StringVar(&readWhere, "where", "", "JSON object of field equality filters")

	rootCmd.AddCommand(createCmd, readCmd, updateCmd, deleteCmd)
}
