// Package tokenizer puts the codecs tokend can serve behind one interface.
// The tiktoken variant is backed by internal/bpe; the SentencePiece variant
// delegates to a pure-Go SentencePiece encoder.
package tokenizer

import "errors"

// Tokenizer kinds.
const (
	KindTiktoken      = "tiktoken"
	KindSentencePiece = "sentencepiece"
)

var (
	// ErrEmptyPath is returned when a tokenizer is constructed with an empty path.
	ErrEmptyPath = errors.New("tokenizer model path must not be empty")
	// ErrUnknownKind is returned by Load for a kind it cannot build.
	ErrUnknownKind = errors.New("unknown tokenizer kind")
	// ErrEmptyPattern is returned when a tiktoken tokenizer has no split pattern.
	ErrEmptyPattern = errors.New("tiktoken pattern must not be empty")
)

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	// Kind reports KindTiktoken or KindSentencePiece.
	Kind() string
	// VocabSize is the number of ordinary (non-special) tokens.
	VocabSize() int
	// Encode tokenizes text. When special is false, special-token literals
	// are encoded as ordinary text.
	Encode(text string, special bool) ([]uint32, error)
	// Decode renders ids back to raw bytes. Implementations that hide
	// control tokens by default emit them when special is true.
	Decode(ids []uint32, special bool) ([]byte, error)
}

// UnstableEncoder is implemented by tokenizers that can report which trailing
// tokens may still change as more text is appended.
type UnstableEncoder interface {
	EncodeWithUnstable(text string) ([]uint32, [][]uint32, error)
}
