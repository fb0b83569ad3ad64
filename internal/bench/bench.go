// Package bench provides benchmarking primitives for the tokend bench command.
package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/example/go-tokend/internal/tokenizer"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and size of a single encode run.
type RunResult struct {
	Index        int
	Cold         bool // true for the first run (cold caches)
	Duration     time.Duration
	Bytes        int
	Tokens       int
	TokensPerSec float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	// MeanTokensPerSec is total tokens over total time.
	MeanTokensPerSec float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize computes Stats over runs, including throughput.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	var total time.Duration
	tokens := 0
	for i, r := range runs {
		durations[i] = r.Duration
		total += r.Duration
		tokens += r.Tokens
	}
	s := ComputeStats(durations)
	s.MeanTokensPerSec = CalcThroughput(tokens, total)
	return s
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// Run encodes text runs times with tok. Special-token literals are encoded
// as ordinary text.
func Run(tok tokenizer.Tokenizer, text string, runs int) ([]RunResult, error) {
	if runs <= 0 {
		return nil, errors.New("runs must be positive")
	}

	out := make([]RunResult, 0, runs)
	for i := range runs {
		start := time.Now()
		ids, err := tok.Encode(text, false)
		d := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		out = append(out, RunResult{
			Index:        i,
			Cold:         i == 0,
			Duration:     d,
			Bytes:        len(text),
			Tokens:       len(ids),
			TokensPerSec: CalcThroughput(len(ids), d),
		})
	}
	return out, nil
}

// CalcThroughput returns tokens per second.
// Returns 0 if d is zero to avoid division by zero.
func CalcThroughput(tokens int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(tokens) / d.Seconds()
}

// WithCPUProfile runs fn while writing a CPU profile to path. An empty path
// runs fn unprofiled.
func WithCPUProfile(path string, fn func() error) error {
	if path == "" {
		return fn()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("start cpu profile: %w", err)
	}
	defer pprof.StopCPUProfile()

	return fn()
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if meanTPS < minimum.
// A minimum of 0 disables the gate.
func CheckThroughputThreshold(meanTPS, minimum float64) error {
	if minimum <= 0 {
		return nil
	}
	if meanTPS < minimum {
		return fmt.Errorf("mean throughput %.0f tokens/s below minimum %.0f", meanTPS, minimum)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
}

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"RUN", "COLD", "MS", "BYTES", "TOKENS", "TOKENS/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		table.Append([]string{
			strconv.Itoa(r.Index + 1),
			cold,
			ms(r.Duration),
			strconv.Itoa(r.Bytes),
			strconv.Itoa(r.Tokens),
			strconv.FormatFloat(r.TokensPerSec, 'f', 0, 64),
		})
	}

	table.Append([]string{"min", "", ms(stats.Min), "", "", ""})
	table.Append([]string{"mean", "", ms(stats.Mean), "", "", strconv.FormatFloat(stats.MeanTokensPerSec, 'f', 0, 64)})
	table.Append([]string{"max", "", ms(stats.Max), "", "", ""})
	table.Render()
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	DurationMS   float64 `json:"duration_ms"`
	Bytes        int     `json:"bytes"`
	Tokens       int     `json:"tokens"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}

type jsonStats struct {
	MinMS            float64 `json:"min_ms"`
	MeanMS           float64 `json:"mean_ms"`
	MaxMS            float64 `json:"max_ms"`
	MeanTokensPerSec float64 `json:"mean_tokens_per_sec"`
}

func msFloat(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:            msFloat(stats.Min),
			MeanMS:           msFloat(stats.Mean),
			MaxMS:            msFloat(stats.Max),
			MeanTokensPerSec: stats.MeanTokensPerSec,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			DurationMS:   msFloat(r.Duration),
			Bytes:        r.Bytes,
			Tokens:       r.Tokens,
			TokensPerSec: r.TokensPerSec,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
