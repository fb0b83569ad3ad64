package config

import (
	"fmt"
	"strings"

	"github.com/example/go-tokend/internal/tokenizer"
)

// NormalizeKind canonicalizes a tokenizer kind. Empty means tiktoken and
// "spm" is accepted for sentencepiece.
func NormalizeKind(raw string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(raw))
	if kind == "" {
		kind = tokenizer.KindTiktoken
	}
	switch kind {
	case tokenizer.KindTiktoken, tokenizer.KindSentencePiece:
		return kind, nil
	case "spm":
		return tokenizer.KindSentencePiece, nil
	default:
		return "", fmt.Errorf(
			"invalid tokenizer kind %q (expected %s|%s|spm)",
			raw,
			tokenizer.KindTiktoken,
			tokenizer.KindSentencePiece,
		)
	}
}
