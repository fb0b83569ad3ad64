package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidBudget = errors.New("max tokens must be positive")

// Encoder is the part of a tokenizer chunking needs.
type Encoder interface {
	Encode(text string, allowSpecial bool) ([]uint32, error)
}

// Chunk is one budgeted piece of the input and its encoding.
type Chunk struct {
	Text   string
	Tokens []uint32
}

// ChunkByTokens splits input into chunks of at most maxTokens tokens each.
// Whole sentences are grouped greedily; a sentence over budget is split
// between words. A single word over budget becomes its own chunk. Pieces
// are rejoined with a single space.
// Chunks are encoded as ordinary text, so special token text is never
// matched.
func ChunkByTokens(input string, enc Encoder, maxTokens int) ([]Chunk, error) {
	if maxTokens <= 0 {
		return nil, ErrInvalidBudget
	}
	input, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	c := chunker{enc: enc, max: maxTokens}
	for _, sent := range splitSentences(input) {
		if err := c.add(sent); err != nil {
			return nil, err
		}
	}
	c.flush()
	return c.chunks, nil
}

type chunker struct {
	enc     Encoder
	max     int
	pending []string
	ids     []uint32
	chunks  []Chunk
}

func (c *chunker) encode(s string) ([]uint32, error) {
	ids, err := c.enc.Encode(s, false)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", s, err)
	}
	return ids, nil
}

// add appends a sentence, flushing first when it would overflow the budget.
func (c *chunker) add(sent string) error {
	joined := strings.Join(append(c.pending[:len(c.pending):len(c.pending)], sent), " ")
	ids, err := c.encode(joined)
	if err != nil {
		return err
	}
	if len(ids) <= c.max {
		c.pending = append(c.pending, sent)
		c.ids = ids
		return nil
	}

	c.flush()
	ids, err = c.encode(sent)
	if err != nil {
		return err
	}
	if len(ids) <= c.max {
		c.pending = append(c.pending, sent)
		c.ids = ids
		return nil
	}

	words := strings.FieldsFunc(sent, unicode.IsSpace)
	if len(words) <= 1 {
		c.chunks = append(c.chunks, Chunk{Text: sent, Tokens: ids})
		return nil
	}
	for _, w := range words {
		if err := c.add(w); err != nil {
			return err
		}
	}
	return nil
}

func (c *chunker) flush() {
	if len(c.pending) == 0 {
		return
	}
	c.chunks = append(c.chunks, Chunk{Text: strings.Join(c.pending, " "), Tokens: c.ids})
	c.pending = nil
	c.ids = nil
}

// splitSentences splits text on sentence-ending punctuation (., !, ?),
// keeping the terminator attached to its sentence.
// Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}

	if start < len(text) {
		s := strings.TrimSpace(text[start:])
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}
