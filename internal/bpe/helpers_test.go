package bpe

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"testing"
)

// testMerges are appended after the 256 single bytes, so "he" is 256,
// "ll" is 257 and so on.
var testMerges = []string{
	"he",      // 256
	"ll",      // 257
	"hell",    // 258
	"hello",   // 259
	" w",      // 260
	"or",      // 261
	"ld",      // 262
	" wor",    // 263
	" world",  // 264
}

const testEOT = Rank(1000)

// byteLevelRanks maps every byte to its own value and each merge to 256+i.
func byteLevelRanks(merges ...string) Ranks {
	r := make(Ranks, 256+len(merges))
	for b := 0; b < 256; b++ {
		r[string([]byte{byte(b)})] = Rank(b)
	}
	for i, m := range merges {
		r[m] = Rank(256 + i)
	}
	return r
}

// tiktokenBlob renders ranks in the .tiktoken line format, ordered by rank.
func tiktokenBlob(ranks Ranks) []byte {
	type entry struct {
		tok  string
		rank Rank
	}
	entries := make([]entry, 0, len(ranks))
	for tok, r := range ranks {
		entries = append(entries, entry{tok, r})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rank < entries[j].rank })

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte(e.tok)), e.rank)
	}
	return []byte(sb.String())
}

func newTestCore(t *testing.T) *Core {
	t.Helper()

	core, err := NewCore(byteLevelRanks(testMerges...), []SpecialToken{{EndOfText, testEOT}}, PatternCl100k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return core
}
