package bpe

import (
	"encoding/binary"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EncodeWithUnstable encodes text (special tokens allowed) and splits the
// result into tokens that cannot change as more text is appended and the
// set of token sequences that could replace the trailing, unstable bytes.
// Completions are deduplicated and sorted.
func (c *Core) EncodeWithUnstable(text string) ([]Rank, [][]Rank, error) {
	tokens, lastPieceLen, err := c.encode(text, true)
	if err != nil {
		return nil, nil, err
	}
	if lastPieceLen == 0 {
		// ended on a special token
		return tokens, nil, nil
	}
	lastPieceLen = c.widenWhitespaceRun(tokens, lastPieceLen)

	cut := len(tokens) - lastPieceLen
	unstable, err := c.Decode(tokens[cut:])
	if err != nil {
		return nil, nil, err
	}
	tokens = tokens[:cut]
	if len(unstable) == 0 {
		return tokens, nil, nil
	}

	set := completionSet{}

	// single tokens starting with the unstable bytes, including an exact match
	for i := c.searchPrefix(string(unstable)); i < len(c.sortedTokens) && strings.HasPrefix(c.sortedTokens[i], string(unstable)); i++ {
		set.add([]Rank{c.encoder[c.sortedTokens[i]]})
	}

	// a token straddling each split point, re-encoded with whatever precedes it
	for i := 1; i < len(unstable); i++ {
		prefix, suffix := unstable[:i], string(unstable[i:])
		for j := c.searchPrefix(suffix); j < len(c.sortedTokens) && strings.HasPrefix(c.sortedTokens[j], suffix); j++ {
			possibility := make([]byte, 0, len(prefix)+len(c.sortedTokens[j]))
			possibility = append(possibility, prefix...)
			possibility = append(possibility, c.sortedTokens[j]...)

			var encoded []Rank
			if utf8.Valid(possibility) {
				// regex splits can block merges BytePairEncode would make
				encoded, err = c.EncodeOrdinary(string(possibility))
			} else {
				encoded, err = BytePairEncode(possibility, c.encoder)
			}
			if err != nil {
				return nil, nil, err
			}

			seq := make([]Rank, 0, len(encoded))
			seqLen := 0
			for _, t := range encoded {
				seq = append(seq, t)
				seqLen += len(c.decoder[t])
				if seqLen >= len(unstable) {
					break
				}
			}
			set.add(seq)
		}
	}

	// \s+(?!\S) can split a trailing whitespace character off once more text
	// arrives, e.g. "\n\n" + "0" becomes "\n", "\n", "0".
	if len(unstable) > 1 {
		r, size := utf8.DecodeLastRune(unstable)
		if len(unstable)-size > 0 && unicode.IsSpace(r) {
			head, err := BytePairEncode(unstable[:len(unstable)-size], c.encoder)
			if err != nil {
				return nil, nil, err
			}
			tail, err := BytePairEncode(unstable[len(unstable)-size:], c.encoder)
			if err != nil {
				return nil, nil, err
			}
			set.add(append(head, tail...))
		}
	}

	return tokens, set.sorted(), nil
}

// widenWhitespaceRun extends the trailing run backwards over whitespace-only
// tokens. \s*[\r\n]+ can merge e.g. "\n" + " " into "\n \n" once more text is
// appended, so a split between whitespace tokens is not stable.
func (c *Core) widenWhitespaceRun(tokens []Rank, n int) int {
	if n > 0 && c.isAllSpace(tokens[len(tokens)-n]) {
		for n < len(tokens) && c.isAllSpace(tokens[len(tokens)-n-1]) {
			n++
		}
	}
	return n
}

func (c *Core) isAllSpace(t Rank) bool {
	b, ok := c.decoder[t]
	if !ok {
		return false
	}
	for i := 0; i < len(b); i++ {
		if b[i] != ' ' && b[i] != '\n' && b[i] != '\t' {
			return false
		}
	}
	return true
}

// searchPrefix returns the index of the first sorted token >= s.
func (c *Core) searchPrefix(s string) int {
	return sort.SearchStrings(c.sortedTokens, s)
}

type completionSet map[string][]Rank

func (s completionSet) add(seq []Rank) {
	key := make([]byte, 4*len(seq))
	for i, t := range seq {
		binary.LittleEndian.PutUint32(key[4*i:], t)
	}
	if _, ok := s[string(key)]; !ok {
		s[string(key)] = seq
	}
}

func (s completionSet) sorted() [][]Rank {
	out := make([][]Rank, 0, len(s))
	for _, seq := range s {
		out = append(out, seq)
	}
	slices.SortFunc(out, slices.Compare[[]Rank])
	return out
}
