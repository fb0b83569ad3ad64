package bpe

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// NewCore
// ---------------------------------------------------------------------------

func TestNewCore_InvalidPattern(t *testing.T) {
	_, err := NewCore(byteLevelRanks(), nil, `(\p{L}`)
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestNewCore_DuplicateRank(t *testing.T) {
	ranks := byteLevelRanks()
	ranks["zz"] = 'a'

	_, err := NewCore(ranks, nil, PatternCl100k)
	if !errors.Is(err, ErrDuplicateRank) {
		t.Fatalf("expected ErrDuplicateRank, got %v", err)
	}
}

func TestNewCore_MissingSingleByte(t *testing.T) {
	ranks := byteLevelRanks(testMerges...)
	delete(ranks, "\x00")

	_, err := NewCore(ranks, nil, PatternCl100k)
	if !errors.Is(err, ErrMissingByte) {
		t.Fatalf("expected ErrMissingByte, got %v", err)
	}
}

func TestNewCore_EmptySpecialToken(t *testing.T) {
	specials := []SpecialToken{{EndOfText, testEOT}, {"", 5}}

	_, err := NewCore(byteLevelRanks(testMerges...), specials, PatternCl100k)
	if !errors.Is(err, ErrInvalidSpecialToken) {
		t.Fatalf("expected ErrInvalidSpecialToken, got %v", err)
	}
}

func TestNewCore_SpecialTokensSorted(t *testing.T) {
	core, err := NewCore(byteLevelRanks(), []SpecialToken{{"<|b|>", 2000}, {"<|a|>", 1000}}, PatternR50k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}

	want := []SpecialToken{{"<|a|>", 1000}, {"<|b|>", 2000}}
	if diff := cmp.Diff(want, core.SpecialTokens()); diff != "" {
		t.Errorf("SpecialTokens mismatch (-want +got):\n%s", diff)
	}
	if !core.IsSpecial(1000) || core.IsSpecial('a') {
		t.Error("IsSpecial reports wrong membership")
	}
	if core.VocabSize() != 256 {
		t.Errorf("VocabSize = %d, want 256", core.VocabSize())
	}
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

func TestEncode(t *testing.T) {
	core := newTestCore(t)

	tests := []struct {
		name    string
		text    string
		special bool
		want    []Rank
	}{
		{name: "whole words", text: "hello world", special: true, want: []Rank{259, 264}},
		{name: "merge fallback", text: "hello worlds", special: true, want: []Rank{259, 264, 's'}},
		{name: "special token", text: "hello<|endoftext|> world", special: true, want: []Rank{259, testEOT, 264}},
		{name: "trailing special", text: "hello <|endoftext|>", special: true, want: []Rank{259, ' ', testEOT}},
		{name: "only special", text: "<|endoftext|><|endoftext|>", special: true, want: []Rank{testEOT, testEOT}},
		{name: "empty", text: "", special: true, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := core.Encode(tc.text, tc.special)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Encode(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestEncode_SpecialDisabledSegmentsLiteral(t *testing.T) {
	core := newTestCore(t)
	text := "hello<|endoftext|>"

	got, err := core.Encode(text, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, tok := range got {
		if tok == testEOT {
			t.Fatalf("special rank emitted with special tokens disabled: %v", got)
		}
	}

	ordinary, err := core.EncodeOrdinary(text)
	if err != nil {
		t.Fatalf("EncodeOrdinary: %v", err)
	}
	if diff := cmp.Diff(got, ordinary); diff != "" {
		t.Errorf("EncodeOrdinary differs from Encode(special=false):\n%s", diff)
	}

	decoded, err := core.Decode(got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != text {
		t.Errorf("Decode = %q, want %q", decoded, text)
	}
}

func TestEncode_NoSpecialTokensNeverMatches(t *testing.T) {
	core, err := NewCore(byteLevelRanks(testMerges...), nil, PatternCl100k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}

	text := "a<|endoftext|>"
	got, err := core.Encode(text, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := core.Decode(got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != text {
		t.Errorf("Decode = %q, want %q", decoded, text)
	}
}

func TestEncode_InvalidUTF8(t *testing.T) {
	core := newTestCore(t)

	if _, err := core.Encode("ab\xff", true); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	core := newTestCore(t)
	texts := []string{
		"hello world",
		"Hello World!",
		"x = 12345;\n\treturn x\n",
		"héllo wörld 🙂",
		"  leading and trailing  ",
		"\n\n\n",
		"it's they're we'll",
		"日本語のテキスト",
	}

	for _, text := range texts {
		toks, err := core.Encode(text, true)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		got, err := core.Decode(toks)
		if err != nil {
			t.Fatalf("Decode(%v): %v", toks, err)
		}
		if string(got) != text {
			t.Errorf("round trip %q -> %v -> %q", text, toks, got)
		}

		again, err := core.Encode(text, true)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		if diff := cmp.Diff(toks, again); diff != "" {
			t.Errorf("Encode(%q) not deterministic:\n%s", text, diff)
		}
	}
}

func TestEncode_ConcurrentUse(t *testing.T) {
	core := newTestCore(t)
	want, err := core.Encode("hello worlds<|endoftext|>", true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				got, err := core.Encode("hello worlds<|endoftext|>", true)
				if err != nil {
					errs <- err
					return
				}
				if !cmp.Equal(want, got) {
					errs <- errors.New("concurrent encode diverged")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

func TestDecode_UnknownToken(t *testing.T) {
	core := newTestCore(t)

	out, err := core.Decode([]Rank{259, 99999})
	if out != nil {
		t.Errorf("expected no partial output, got %q", out)
	}
	if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Token != 99999 {
		t.Errorf("expected DecodeError for 99999, got %v", err)
	}
}

func TestDecode_OrdinaryBeforeSpecial(t *testing.T) {
	core, err := NewCore(byteLevelRanks(), []SpecialToken{{"<|x|>", 'a'}}, PatternR50k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}

	got, err := core.Decode([]Rank{'a'})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "a" {
		t.Errorf("Decode = %q, want %q", got, "a")
	}
}

func TestDecode_Special(t *testing.T) {
	core := newTestCore(t)

	got, err := core.Decode([]Rank{259, ' ', testEOT})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "hello <|endoftext|>" {
		t.Errorf("Decode = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Encodings
// ---------------------------------------------------------------------------

func TestLookupEncoding(t *testing.T) {
	for _, name := range EncodingNames() {
		enc, ok := LookupEncoding(name)
		if !ok {
			t.Fatalf("LookupEncoding(%q) not found", name)
		}
		if _, err := NewCore(byteLevelRanks(), enc.SpecialTokens, enc.Pattern); err != nil {
			t.Errorf("%s: NewCore: %v", name, err)
		}
	}

	if _, ok := LookupEncoding("gpt5_base"); ok {
		t.Error("unexpected preset gpt5_base")
	}
}

func TestLookupEncoding_ReturnsCopy(t *testing.T) {
	enc, _ := LookupEncoding("cl100k_base")
	enc.SpecialTokens[0].Rank = 1

	again, _ := LookupEncoding("cl100k_base")
	if again.SpecialTokens[0].Rank != 100257 {
		t.Errorf("preset mutated through returned slice: %d", again.SpecialTokens[0].Rank)
	}
}
