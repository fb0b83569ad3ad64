// Package bpe implements tiktoken-compatible byte pair encoding: vocabulary
// loading, the rank-ordered merge, regex segmentation with special tokens,
// and the unstable-suffix completion query.
package bpe

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// SpecialToken is a literal string recognised as a unit and mapped to Rank.
type SpecialToken struct {
	Text string
	Rank Rank
}

// Core is an immutable BPE codec. It is safe for concurrent use.
type Core struct {
	encoder        Ranks
	specialEncoder map[string]Rank
	decoder        map[Rank]string
	specialDecoder map[Rank]string
	pattern        *regexp2.Regexp
	special        *regexp2.Regexp // nil when there are no special tokens
	sortedTokens   []string
}

// NewCore builds a codec from an ordinary vocabulary, the special tokens and
// the segmentation pattern. It fails when the pattern does not compile, a
// special token has empty text, two entries share a rank, or any single byte
// is missing from encoder.
func NewCore(encoder Ranks, specials []SpecialToken, pattern string) (*Core, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: segmentation: %v", ErrInvalidPattern, err)
	}

	specialEncoder := make(map[string]Rank, len(specials))
	for _, s := range specials {
		// an empty literal matches everywhere and would stall the encode loop
		if s.Text == "" {
			return nil, fmt.Errorf("%w: empty text for rank %d", ErrInvalidSpecialToken, s.Rank)
		}
		specialEncoder[s.Text] = s.Rank
	}

	var specialRe *regexp2.Regexp
	if len(specialEncoder) > 0 {
		specialRe, err = compileSpecial(specialEncoder)
		if err != nil {
			return nil, err
		}
	}

	decoder := make(map[Rank]string, len(encoder))
	for tok, r := range encoder {
		decoder[r] = tok
	}
	if len(decoder) != len(encoder) {
		return nil, fmt.Errorf("%w: %d entries share %d ranks", ErrDuplicateRank, len(encoder), len(decoder))
	}

	specialDecoder := make(map[Rank]string, len(specialEncoder))
	for s, r := range specialEncoder {
		specialDecoder[r] = s
	}

	sorted := make([]string, 0, len(encoder))
	for tok := range encoder {
		sorted = append(sorted, tok)
	}
	slices.Sort(sorted)

	for b := 0; b < 256; b++ {
		if _, ok := encoder[string([]byte{byte(b)})]; !ok {
			return nil, fmt.Errorf("%w: 0x%02x", ErrMissingByte, b)
		}
	}

	return &Core{
		encoder:        encoder,
		specialEncoder: specialEncoder,
		decoder:        decoder,
		specialDecoder: specialDecoder,
		pattern:        re,
		special:        specialRe,
		sortedTokens:   sorted,
	}, nil
}

// compileSpecial builds one alternation over the escaped literals, longest
// first so that a literal never loses to one of its own prefixes.
func compileSpecial(specials map[string]Rank) (*regexp2.Regexp, error) {
	lits := make([]string, 0, len(specials))
	for s := range specials {
		lits = append(lits, s)
	}
	slices.SortFunc(lits, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for i, s := range lits {
		lits[i] = regexp2.Escape(s)
	}
	re, err := regexp2.Compile(strings.Join(lits, "|"), regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: special tokens: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// VocabSize returns the number of ordinary vocabulary entries.
func (c *Core) VocabSize() int { return len(c.encoder) }

// IsSpecial reports whether id is a special token rank.
func (c *Core) IsSpecial(id Rank) bool {
	_, ok := c.specialDecoder[id]
	return ok
}

// SpecialTokens returns the special tokens ordered by rank.
func (c *Core) SpecialTokens() []SpecialToken {
	out := make([]SpecialToken, 0, len(c.specialEncoder))
	for s, r := range c.specialEncoder {
		out = append(out, SpecialToken{Text: s, Rank: r})
	}
	slices.SortFunc(out, func(a, b SpecialToken) int { return cmp.Compare(a.Rank, b.Rank) })
	return out
}

// Encode tokenizes text. When allowSpecial is set, special token literals
// are emitted as their own rank instead of being segmented.
func (c *Core) Encode(text string, allowSpecial bool) ([]Rank, error) {
	toks, _, err := c.encode(text, allowSpecial)
	return toks, err
}

// EncodeOrdinary tokenizes text treating special token literals as plain text.
func (c *Core) EncodeOrdinary(text string) ([]Rank, error) {
	toks, _, err := c.encode(text, false)
	return toks, err
}

// encode also returns how many tokens the last regex piece produced, or 0
// when text ended on a special token. Merges never cross a regex split, so
// only those trailing tokens can change when more text is appended.
func (c *Core) encode(text string, allowSpecial bool) ([]Rank, int, error) {
	if !utf8.ValidString(text) {
		return nil, 0, ErrInvalidUTF8
	}

	runes := []rune(text)
	var out []Rank
	lastPieceLen := 0
	start := 0
	for {
		var next *regexp2.Match
		if allowSpecial && c.special != nil {
			m, err := c.special.FindRunesMatchStartingAt(runes, start)
			if err != nil {
				return nil, 0, fmt.Errorf("special token scan: %w", err)
			}
			next = m
		}
		end := len(runes)
		if next != nil {
			end = next.Index
		}

		m, err := c.pattern.FindRunesMatch(runes[start:end])
		for ; m != nil; m, err = c.pattern.FindNextMatch(m) {
			piece := m.String()
			if r, ok := c.encoder[piece]; ok {
				out = append(out, r)
				lastPieceLen = 1
				continue
			}
			toks, encErr := BytePairEncode([]byte(piece), c.encoder)
			if encErr != nil {
				return nil, 0, encErr
			}
			out = append(out, toks...)
			lastPieceLen = len(toks)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("segment text: %w", err)
		}

		if next == nil {
			break
		}
		out = append(out, c.specialEncoder[next.String()])
		start = next.Index + next.Length
		lastPieceLen = 0
	}
	return out, lastPieceLen, nil
}

// Decode returns the concatenated bytes of tokens. Ordinary ranks take
// precedence over special ranks; a rank in neither fails the whole call.
func (c *Core) Decode(tokens []Rank) ([]byte, error) {
	out := make([]byte, 0, len(tokens)*2)
	for _, t := range tokens {
		if b, ok := c.decoder[t]; ok {
			out = append(out, b...)
			continue
		}
		if b, ok := c.specialDecoder[t]; ok {
			out = append(out, b...)
			continue
		}
		return nil, &DecodeError{Token: t}
	}
	return out, nil
}
