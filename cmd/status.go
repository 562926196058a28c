package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the approximate depth of every configured queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			depth, closeTransport, err := newDepthReader(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeTransport()

			out := cmd.OutOrStdout()
			for _, q := range cfg.Listener.Queues {
				n, err := depth(ctx, q.Endpoint)
				if err != nil {
					fmt.Fprintf(out, "%s\tERROR: %v\n", q.Endpoint, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%d messages\n", q.Endpoint, n)
			}
			return nil
		},
	}
}
