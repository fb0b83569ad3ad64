package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/wire"
)

// parseIDs accepts ids separated by spaces or commas across any number of args.
func parseIDs(args []string) ([]uint32, error) {
	var ids []uint32
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' }) {
			n, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q: %w", field, err)
			}
			ids = append(ids, uint32(n))
		}
	}
	return ids, nil
}

func newDecodeCmd() *cobra.Command {
	var (
		sel     tokenizerFlags
		special bool
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "decode [ids...]",
		Short: "Decode token ids to text",
		Long:  "Decode token ids to text. Without arguments the ids are read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := sel.load(cfg)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				in, err := readText(cmd, nil)
				if err != nil {
					return err
				}
				args = []string{in}
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			data, err := tok.Decode(ids, special)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				_, err = out.Write(data)
				return err
			}
			_, err = fmt.Fprintln(out, wire.Lossy(data))
			return err
		},
	}

	sel.register(cmd.Flags())
	cmd.Flags().BoolVar(&special, "special", false, "Render control pieces (sentencepiece only)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write the decoded bytes unmodified")

	return cmd
}
