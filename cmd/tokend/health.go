package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/server"
)

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report status, version and loaded tokenizers of a running tokend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.ListenAddr
			}

			health, err := server.FetchHealth(addr)
			if err != nil {
				return fmt.Errorf("health %s: %w", addr, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s version=%s tokenizers=%d\n",
				health.Status, health.Version, health.Tokenizers)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "tokend address to query (defaults to server.listen_addr)")

	return cmd
}
