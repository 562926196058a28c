package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/auth"
)

func newTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			token, err := auth.NewAuthenticator(cfg.Auth.JWTSecret).GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
