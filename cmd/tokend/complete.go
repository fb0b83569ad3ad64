package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/wire"
)

func newCompleteCmd() *cobra.Command {
	var sel tokenizerFlags

	cmd := &cobra.Command{
		Use:   "complete [text...]",
		Short: "Show the stable tokens and possible completions of a text prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := sel.load(cfg)
			if err != nil {
				return err
			}
			u, err := unstable(tok)
			if err != nil {
				return err
			}
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}

			stable, completions, err := u.EncodeWithUnstable(text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "stable: %s\n", formatIDs(stable)); err != nil {
				return err
			}
			for _, c := range completions {
				data, err := tok.Decode(c, true)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(out, "completion: %s\t%s\n", formatIDs(c), strconv.Quote(wire.Lossy(data))); err != nil {
					return err
				}
			}
			return nil
		},
	}

	sel.register(cmd.Flags())

	return cmd
}
