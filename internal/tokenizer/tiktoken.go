package tokenizer

import (
	"fmt"
	"os"

	"github.com/example/go-tokend/internal/bpe"
)

// Tiktoken is a byte-level BPE tokenizer in the tiktoken format.
type Tiktoken struct {
	core     *bpe.Core
	encoding string
}

var (
	_ Tokenizer       = (*Tiktoken)(nil)
	_ UnstableEncoder = (*Tiktoken)(nil)
)

// NewTiktoken builds a tokenizer from a .tiktoken vocabulary blob.
//
// pattern is either a split regex or the name of a preset encoding such as
// "cl100k_base". For a preset, its special tokens are used when specials is
// nil.
func NewTiktoken(vocab []byte, specials []bpe.SpecialToken, pattern string) (*Tiktoken, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	encoding := ""
	if enc, ok := bpe.LookupEncoding(pattern); ok {
		encoding = enc.Name
		pattern = enc.Pattern
		if specials == nil {
			specials = enc.SpecialTokens
		}
	}

	ranks, err := bpe.ParseRanks(vocab)
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}

	core, err := bpe.NewCore(ranks, specials, pattern)
	if err != nil {
		return nil, err
	}

	return &Tiktoken{core: core, encoding: encoding}, nil
}

// NewTiktokenFromFile reads a .tiktoken file and delegates to NewTiktoken.
func NewTiktokenFromFile(path string, specials []bpe.SpecialToken, pattern string) (*Tiktoken, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %q: %w", path, err)
	}

	return NewTiktoken(data, specials, pattern)
}

func (t *Tiktoken) Kind() string { return KindTiktoken }

// Encoding is the preset name the tokenizer was built from, or "" for a
// custom pattern.
func (t *Tiktoken) Encoding() string { return t.encoding }

func (t *Tiktoken) VocabSize() int { return t.core.VocabSize() }

// SpecialTokens lists the special tokens ordered by rank.
func (t *Tiktoken) SpecialTokens() []bpe.SpecialToken { return t.core.SpecialTokens() }

func (t *Tiktoken) Encode(text string, special bool) ([]uint32, error) {
	return t.core.Encode(text, special)
}

// Decode always renders special ranks; the flag only matters for
// tokenizers that hide control pieces.
func (t *Tiktoken) Decode(ids []uint32, _ bool) ([]byte, error) {
	return t.core.Decode(ids)
}

func (t *Tiktoken) EncodeWithUnstable(text string) ([]uint32, [][]uint32, error) {
	return t.core.EncodeWithUnstable(text)
}
