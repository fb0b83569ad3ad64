package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/vocab"
)

func newFetchCmd() *cobra.Command {
	var (
		outDir  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "fetch [encoding...]",
		Short: "Download and verify published vocabularies into the vocab dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Paths.VocabDir
			}
			if outDir == "" {
				return fmt.Errorf("--out or --paths-vocab-dir is required for fetch")
			}

			manifest, err := vocab.PinnedManifest(baseURL, args...)
			if err != nil {
				return err
			}

			return vocab.Fetch(cmd.Context(), vocab.FetchOptions{
				Manifest: manifest,
				OutDir:   outDir,
				Stdout:   cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (defaults to the vocab dir)")
	cmd.Flags().StringVar(&baseURL, "base-url", vocab.DefaultBaseURL, "Mirror serving <encoding>.tiktoken files")

	return cmd
}
