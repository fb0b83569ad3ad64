// Package doctor provides preflight checks for the tokenizers tokend is
// configured to serve.
package doctor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/example/go-tokend/internal/config"
	"github.com/example/go-tokend/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// DefaultProbeText is round-tripped through every tokenizer that loads.
const DefaultProbeText = "Hello, world! 123 héllo\n\tworld"

// LoadFunc builds a tokenizer.
type LoadFunc func() (tokenizer.Tokenizer, error)

// TokenizerCheck describes one configured tokenizer.
type TokenizerCheck struct {
	Name string
	// Path is checked for existence before Load runs. Empty skips the check.
	Path string
	Load LoadFunc
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// VocabDir, when set, must be an existing directory.
	VocabDir   string
	Tokenizers []TokenizerCheck
	// ProbeText defaults to DefaultProbeText.
	ProbeText string
}

// FromConfig builds checks for every tokenizer in cfg.
func FromConfig(cfg config.Config) Config {
	out := Config{VocabDir: cfg.Paths.VocabDir}
	for _, tc := range cfg.Tokenizers {
		spec, specErr := tc.Spec(cfg.Paths.VocabDir)
		out.Tokenizers = append(out.Tokenizers, TokenizerCheck{
			Name: tc.Name,
			Path: spec.Path,
			Load: func() (tokenizer.Tokenizer, error) {
				if specErr != nil {
					return nil, specErr
				}
				return tokenizer.Load(spec)
			},
		})
	}
	return out
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	probe := cfg.ProbeText
	if probe == "" {
		probe = DefaultProbeText
	}

	// ---- vocabulary directory ---------------------------------------------
	if cfg.VocabDir != "" {
		if fi, err := os.Stat(cfg.VocabDir); err != nil {
			res.fail(fmt.Sprintf("vocab dir %q: %v", cfg.VocabDir, err))
			fmt.Fprintf(w, "%s vocab dir %s: not found\n", FailMark, cfg.VocabDir)
		} else if !fi.IsDir() {
			res.fail(fmt.Sprintf("vocab dir %q: not a directory", cfg.VocabDir))
			fmt.Fprintf(w, "%s vocab dir %s: not a directory\n", FailMark, cfg.VocabDir)
		} else {
			fmt.Fprintf(w, "%s vocab dir: %s\n", PassMark, cfg.VocabDir)
		}
	}

	if len(cfg.Tokenizers) == 0 {
		fmt.Fprintf(w, "%s tokenizers: none configured\n", PassMark)
	}

	// ---- tokenizers ---------------------------------------------------------
	for _, tc := range cfg.Tokenizers {
		checkTokenizer(&res, tc, probe, w)
	}

	return res
}

func checkTokenizer(res *Result, tc TokenizerCheck, probe string, w io.Writer) {
	if tc.Path != "" {
		if _, err := os.Stat(tc.Path); err != nil {
			res.fail(fmt.Sprintf("tokenizer %s file %q: %v", tc.Name, tc.Path, err))
			fmt.Fprintf(w, "%s tokenizer %s: file %s not found\n", FailMark, tc.Name, tc.Path)
			return
		}
	}

	start := time.Now()
	tok, err := tc.Load()
	elapsed := time.Since(start)
	if err != nil {
		res.fail(fmt.Sprintf("tokenizer %s: %v", tc.Name, err))
		fmt.Fprintf(w, "%s tokenizer %s: load failed (%v)\n", FailMark, tc.Name, err)
		return
	}
	fmt.Fprintf(w, "%s tokenizer %s: loaded %s, %d tokens in %s\n",
		PassMark, tc.Name, tok.Kind(), tok.VocabSize(), elapsed.Round(time.Millisecond))

	ids, err := tok.Encode(probe, false)
	if err != nil {
		res.fail(fmt.Sprintf("tokenizer %s encode: %v", tc.Name, err))
		fmt.Fprintf(w, "%s tokenizer %s: encode failed (%v)\n", FailMark, tc.Name, err)
		return
	}
	text, err := tok.Decode(ids, false)
	if err != nil {
		res.fail(fmt.Sprintf("tokenizer %s decode: %v", tc.Name, err))
		fmt.Fprintf(w, "%s tokenizer %s: decode failed (%v)\n", FailMark, tc.Name, err)
		return
	}

	// SentencePiece normalizes whitespace, so only tiktoken must round-trip exactly.
	if tok.Kind() == tokenizer.KindTiktoken && !bytes.Equal(text, []byte(probe)) {
		res.fail(fmt.Sprintf("tokenizer %s round-trip: got %q, want %q", tc.Name, text, probe))
		fmt.Fprintf(w, "%s tokenizer %s: round-trip mismatch\n", FailMark, tc.Name)
		return
	}
	fmt.Fprintf(w, "%s tokenizer %s: round-trip ok (%d tokens)\n", PassMark, tc.Name, len(ids))
}
