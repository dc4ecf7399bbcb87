package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/galyarder/galyarder-store/internal/config"
	"github.com/galyarder/galyarder-store/internal/insight"
	"github.com/galyarder/galyarder-store/pkg/schema"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

var (
	authEmail    string
	authPassword string
	authName     string
)

func credentials() (schema.Credentials, error) {
	if authEmail == "" || authPassword == "" {
		return schema.Credentials{}, errors.New("--email and --password are required")
	}
	return schema.Credentials{Email: authEmail, Password: authPassword, DisplayName: authName}, nil
}

var signupCmd = &cobra.Command{
	Use:     "signup",
	GroupID: "auth",
	Short:   "Create an account and a default profile",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials()
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			res, err := layer.SignUp(ctx, creds)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.User)
		})
	},
}

var signinCmd = &cobra.Command{
	Use:     "signin",
	GroupID: "auth",
	Short:   "Sign in and remember the session on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials()
		if err != nil {
			return err
		}
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			res, err := layer.SignIn(ctx, creds)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.User)
		})
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	GroupID: "auth",
	Short:   "End the session and forget it on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			if err := layer.SignOut(ctx); err != nil {
				// The local session is gone either way.
				_, _ = warningColor.Fprintf(cmd.ErrOrStderr(), "Backend sign-out failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Print the signed-in user",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLayer(cmd, func(ctx context.Context, layer *sdk.DataLayer, _ *config.Config) error {
			u, err := layer.CurrentUser(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		})
	},
}

var insightCmd = &cobra.Command{
	Use:   "insight <prompt>",
	Short: "Ask the first configured LLM provider, with a fixed fallback answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		providers := insight.Providers(insight.Keys{
			Anthropic:       cfg.AnthropicAPIKey,
			OpenAI:          cfg.OpenAIAPIKey,
			OpenRouter:      cfg.OpenRouterAPIKey,
			AnthropicModel:  cfg.AnthropicModel,
			OpenAIModel:     cfg.OpenAIModel,
			OpenRouterModel: cfg.OpenRouterModel,
		})
		logger := config.NewLogger("[insight] ", cfg.LogFile)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		res := insight.NewSelector(logger, providers...).Generate(ctx, strings.Join(args, " "))
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, signinCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email")
		c.Flags().StringVar(&authPassword, "password", "", "Account password")
	}
	signupCmd.Flags().StringVar(&authName, "name", "", "Display name for the profile")

	rootCmd.AddCommand(signupCmd, signinCmd, signoutCmd, whoamiCmd, insightCmd)
}
