package tokenizer

import (
	"fmt"

	"github.com/example/go-tokend/internal/bpe"
)

// Spec describes a tokenizer to build. Exactly one of Path or Data supplies
// the vocabulary or model; Data wins when both are set.
type Spec struct {
	Kind string
	Path string
	Data []byte
	// Pattern is the split regex or preset encoding name. Tiktoken only.
	Pattern string
	// SpecialTokens overrides the preset's special tokens. Tiktoken only.
	SpecialTokens []bpe.SpecialToken
}

// Load builds the tokenizer described by spec. An empty kind means tiktoken.
func Load(spec Spec) (Tokenizer, error) {
	var (
		tok Tokenizer
		err error
	)
	switch spec.Kind {
	case KindTiktoken, "":
		var t *Tiktoken
		if spec.Data != nil {
			t, err = NewTiktoken(spec.Data, spec.SpecialTokens, spec.Pattern)
		} else {
			t, err = NewTiktokenFromFile(spec.Path, spec.SpecialTokens, spec.Pattern)
		}
		tok = t
	case KindSentencePiece:
		var sp *SentencePiece
		if spec.Data != nil {
			sp, err = NewSentencePieceFromBytes(spec.Data)
		} else {
			sp, err = NewSentencePiece(spec.Path)
		}
		tok = sp
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, spec.Kind)
	}
	if err != nil {
		return nil, err
	}

	return tok, nil
}
