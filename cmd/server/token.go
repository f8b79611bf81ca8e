package main

import (
	"fmt"

	"github.com/dkeye/LiveClass/internal/auth"
	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	id   string
	name string
	role string
}

// tokenCmd mints a token for local testing; production tokens come from the platform.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, err := domain.ParseRole(tokenFlags.role)
		if err != nil {
			return fmt.Errorf("role %q: %w", tokenFlags.role, err)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(&domain.User{ID: domain.UserID(tokenFlags.id), Username: tokenFlags.name, Role: role})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.id, "id", "", "user id")
	tokenCmd.Flags().StringVar(&tokenFlags.name, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", string(domain.RoleStudent), "user role")
	_ = tokenCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(tokenCmd)
}
