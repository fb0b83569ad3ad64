package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tokend/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		sel        tokenizerFlags
		text       string
		textFile   string
		runs       int
		format     string
		minTPS     float64
		cpuProfile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encode latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("read --text-file: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text or --text-file is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			tok, err := sel.load(cfg)
			if err != nil {
				return err
			}

			var results []bench.RunResult
			err = bench.WithCPUProfile(cpuProfile, func() error {
				var runErr error
				results, runErr = bench.Run(tok, text, runs)
				return runErr
			})
			if err != nil {
				return err
			}

			stats := bench.Summarize(results)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				bench.FormatJSON(results, stats, out)
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckThroughputThreshold(stats.MeanTokensPerSec, minTPS)
		},
	}

	sel.register(cmd.Flags())
	cmd.Flags().StringVar(&text, "text", "", "Text to encode on each run")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read the benchmark text from a file")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of encode runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minTPS, "min-tps", 0, "Exit non-zero if mean tokens/sec falls below this value (0 = disabled)")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile of the runs to this file")

	return cmd
}
