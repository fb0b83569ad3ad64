package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/example/go-tokend/internal/config"
	"github.com/example/go-tokend/internal/tokenizer"
)

// tokenizerFlags selects a configured tokenizer by name or describes an
// ad-hoc one by path.
type tokenizerFlags struct {
	name     string
	path     string
	kind     string
	encoding string
	pattern  string
}

func (f *tokenizerFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.name, "tokenizer", "t", "", "Configured tokenizer name")
	fs.StringVar(&f.path, "vocab", "", "Vocabulary or model file for an ad-hoc tokenizer")
	fs.StringVar(&f.kind, "kind", "", "Ad-hoc tokenizer kind (tiktoken|sentencepiece)")
	fs.StringVar(&f.encoding, "encoding", "", "Ad-hoc preset encoding (default cl100k_base)")
	fs.StringVar(&f.pattern, "pattern", "", "Ad-hoc split pattern, overriding the encoding's")
}

// resolve picks the tokenizer config to use. A lone configured tokenizer is
// used when nothing is selected.
func (f tokenizerFlags) resolve(cfg config.Config) (config.TokenizerConfig, error) {
	if f.path != "" {
		tc := config.TokenizerConfig{
			Name:     "adhoc",
			Kind:     f.kind,
			Path:     f.path,
			Encoding: f.encoding,
			Pattern:  f.pattern,
		}
		if tc.Encoding == "" && tc.Pattern == "" {
			tc.Encoding = "cl100k_base"
		}
		return tc, nil
	}

	if f.name != "" {
		tc, ok := cfg.Tokenizer(f.name)
		if !ok {
			return config.TokenizerConfig{}, fmt.Errorf("tokenizer %q is not configured", f.name)
		}
		return tc, nil
	}

	if len(cfg.Tokenizers) == 1 {
		return cfg.Tokenizers[0], nil
	}
	return config.TokenizerConfig{}, fmt.Errorf("select a tokenizer with --tokenizer or --vocab (%d configured)", len(cfg.Tokenizers))
}

func (f tokenizerFlags) load(cfg config.Config) (tokenizer.Tokenizer, error) {
	tc, err := f.resolve(cfg)
	if err != nil {
		return nil, err
	}

	vocabDir := cfg.Paths.VocabDir
	if f.path != "" {
		vocabDir = ""
	}
	spec, err := tc.Spec(vocabDir)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %q: %w", tc.Name, err)
	}

	tok, err := tokenizer.Load(spec)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %q: %w", tc.Name, err)
	}
	return tok, nil
}
