package bpe

import "strings"

// Encoding is a named segmentation pattern plus its special tokens. The
// ranks themselves ship separately as a .tiktoken file.
type Encoding struct {
	Name          string
	Pattern       string
	SpecialTokens []SpecialToken
}

const (
	// PatternR50k is the GPT-2 style pattern shared by r50k_base and p50k_base.
	PatternR50k = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

	PatternCl100k = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

// PatternO200k is the o200k_base pattern.
var PatternO200k = strings.Join([]string{
	`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
	`[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
	`\p{N}{1,3}`,
	` ?[^\s\p{L}\p{N}]+[\r\n/]*`,
	`\s*[\r\n]+`,
	`\s+(?!\S)`,
	`\s+`,
}, "|")

const EndOfText = "<|endoftext|>"

var encodings = map[string]Encoding{
	"r50k_base": {
		Name:          "r50k_base",
		Pattern:       PatternR50k,
		SpecialTokens: []SpecialToken{{EndOfText, 50256}},
	},
	"p50k_base": {
		Name:          "p50k_base",
		Pattern:       PatternR50k,
		SpecialTokens: []SpecialToken{{EndOfText, 50256}},
	},
	"cl100k_base": {
		Name:    "cl100k_base",
		Pattern: PatternCl100k,
		SpecialTokens: []SpecialToken{
			{EndOfText, 100257},
			{"<|fim_prefix|>", 100258},
			{"<|fim_middle|>", 100259},
			{"<|fim_suffix|>", 100260},
			{"<|im_start|>", 100264},
			{"<|im_end|>", 100265},
			{"<|endofprompt|>", 100276},
		},
	},
	"o200k_base": {
		Name:    "o200k_base",
		Pattern: PatternO200k,
		SpecialTokens: []SpecialToken{
			{EndOfText, 199999},
			{"<|endofprompt|>", 200018},
		},
	},
}

// LookupEncoding returns the preset registered under name.
func LookupEncoding(name string) (Encoding, bool) {
	e, ok := encodings[name]
	if !ok {
		return Encoding{}, false
	}
	e.SpecialTokens = append([]SpecialToken(nil), e.SpecialTokens...)
	return e, true
}

// EncodingNames lists the known presets.
func EncodingNames() []string {
	return []string{"cl100k_base", "o200k_base", "p50k_base", "r50k_base"}
}
