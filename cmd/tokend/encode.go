package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/tokenizer"
)

// readText returns the joined args, or stdin when no args are given.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func formatIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, " ")
}

func newEncodeCmd() *cobra.Command {
	var (
		sel       tokenizerFlags
		noSpecial bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode text to token ids",
		Long:  "Encode text to token ids. Without arguments the text is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := sel.load(cfg)
			if err != nil {
				return err
			}
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}

			ids, err := tok.Encode(text, !noSpecial)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if ids == nil {
					ids = []uint32{}
				}
				return json.NewEncoder(out).Encode(ids)
			}
			_, err = fmt.Fprintln(out, formatIDs(ids))
			return err
		},
	}

	sel.register(cmd.Flags())
	cmd.Flags().BoolVar(&noSpecial, "no-special", false, "Treat special token text as ordinary text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print ids as a JSON array")

	return cmd
}

// unstable narrows tok to the completion-aware codec.
func unstable(tok tokenizer.Tokenizer) (tokenizer.UnstableEncoder, error) {
	u, ok := tok.(tokenizer.UnstableEncoder)
	if !ok {
		return nil, fmt.Errorf("%s tokenizers do not support unstable encoding", tok.Kind())
	}
	return u, nil
}
