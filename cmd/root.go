package main

import (
	"github.com/spf13/cobra"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/config"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "aws-sqs-consumer",
		Short: "Consumes JSON messages from a queue and prints them",
		Long: `Registers a listener on every configured queue endpoint, decodes each
delivery into a message and prints it. Deletion after handling follows the
per-queue deletion policy.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runListener(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(
		newStatusCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}
