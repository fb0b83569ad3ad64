package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/text"
)

func newChunkCmd() *cobra.Command {
	var (
		sel       tokenizerFlags
		maxTokens int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "chunk [text...]",
		Short: "Split text into pieces that fit a token budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := sel.load(cfg)
			if err != nil {
				return err
			}
			in, err := readText(cmd, args)
			if err != nil {
				return err
			}

			chunks, err := text.ChunkByTokens(in, tok, maxTokens)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				type jsonChunk struct {
					Text   string `json:"text"`
					Tokens int    `json:"tokens"`
				}
				report := make([]jsonChunk, len(chunks))
				for i, c := range chunks {
					report[i] = jsonChunk{Text: c.Text, Tokens: len(c.Tokens)}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			for i, c := range chunks {
				if _, err := fmt.Fprintf(out, "[%d] %d tokens: %s\n", i, len(c.Tokens), c.Text); err != nil {
					return err
				}
			}
			return nil
		},
	}

	sel.register(cmd.Flags())
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 512, "Token budget per chunk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print chunks as JSON")

	return cmd
}
