package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/auth"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
)

var (
	userID   string
	username string
	roles    []string
	ttl      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue a JWT for the codegen orchestrator API",
	Long: `Issue a signed bearer token for the codegen orchestrator API.

The token is signed with JWT_SECRET (read from the environment or .env) and
printed to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(userID) == "" {
			return fmt.Errorf("--user is required")
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}

		cfg := config.Load(zap.NewNop())
		jwtManager, err := auth.NewJWTManager(cfg.App.JWTSecret)
		if err != nil {
			return err
		}

		if username == "" {
			username = userID
		}

		token, err := jwtManager.GenerateToken(context.Background(), userID, username, roles, ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&userID, "user", "", "User ID to embed in the token (required)")
	rootCmd.Flags().StringVar(&username, "name", "", "Display name (default: the user ID)")
	rootCmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleDeveloper}, "Role claims, repeatable")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (default matches TOKEN_TTL's default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
