package wire

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/example/go-tokend/internal/bpe"
	"github.com/example/go-tokend/internal/registry"
	"github.com/example/go-tokend/internal/tokenizer"
)

var (
	// ErrNoSource is returned for a LoadRequest that names no tokenizer source
	// or more than one.
	ErrNoSource = errors.New("exactly one of tiktoken or sentencepiece must be set")
	// ErrPathNotAllowed is returned when a request names a file outside the
	// server's vocabulary directory.
	ErrPathNotAllowed = errors.New("vocabulary path not allowed")
)

// SpecialToken is a special-token literal and its rank.
type SpecialToken struct {
	Text string `json:"text" cbor:"text"`
	Rank uint32 `json:"rank" cbor:"rank"`
}

// TiktokenSource carries a tiktoken vocabulary inline (Vocab) or by a path
// relative to the server's vocabulary directory.
type TiktokenSource struct {
	Vocab         []byte         `json:"vocab,omitempty" cbor:"vocab,omitempty"`
	Path          string         `json:"path,omitempty" cbor:"path,omitempty"`
	Pattern       string         `json:"pattern" cbor:"pattern"`
	SpecialTokens []SpecialToken `json:"special_tokens,omitempty" cbor:"special_tokens,omitempty"`
}

// SentencePieceSource carries a SentencePiece model inline or by path.
type SentencePieceSource struct {
	Model []byte `json:"model,omitempty" cbor:"model,omitempty"`
	Path  string `json:"path,omitempty" cbor:"path,omitempty"`
}

// LoadRequest asks the server to build and register a tokenizer. Exactly one
// of Tiktoken or SentencePiece is set.
type LoadRequest struct {
	Name          string               `json:"name" cbor:"name"`
	Tiktoken      *TiktokenSource      `json:"tiktoken,omitempty" cbor:"tiktoken,omitempty"`
	SentencePiece *SentencePieceSource `json:"sentencepiece,omitempty" cbor:"sentencepiece,omitempty"`
}

// Spec resolves the request into a tokenizer.Spec. Paths are resolved
// against vocabDir; path loading is refused when vocabDir is empty.
func (r LoadRequest) Spec(vocabDir string) (tokenizer.Spec, error) {
	if r.Name == "" {
		return tokenizer.Spec{}, errors.New("name is required")
	}
	if (r.Tiktoken == nil) == (r.SentencePiece == nil) {
		return tokenizer.Spec{}, ErrNoSource
	}

	if src := r.Tiktoken; src != nil {
		spec := tokenizer.Spec{
			Kind:    tokenizer.KindTiktoken,
			Data:    src.Vocab,
			Pattern: src.Pattern,
		}
		if src.SpecialTokens != nil {
			spec.SpecialTokens = make([]bpe.SpecialToken, len(src.SpecialTokens))
			for i, st := range src.SpecialTokens {
				spec.SpecialTokens[i] = bpe.SpecialToken{Text: st.Text, Rank: st.Rank}
			}
		}
		if spec.Data == nil {
			p, err := resolvePath(vocabDir, src.Path)
			if err != nil {
				return tokenizer.Spec{}, err
			}
			spec.Path = p
		}
		return spec, nil
	}

	src := r.SentencePiece
	spec := tokenizer.Spec{Kind: tokenizer.KindSentencePiece, Data: src.Model}
	if spec.Data == nil {
		p, err := resolvePath(vocabDir, src.Path)
		if err != nil {
			return tokenizer.Spec{}, err
		}
		spec.Path = p
	}
	return spec, nil
}

func resolvePath(dir, path string) (string, error) {
	if path == "" {
		return "", errors.New("inline data or path is required")
	}
	if dir == "" {
		return "", fmt.Errorf("%w: no vocabulary directory configured", ErrPathNotAllowed)
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: %q", ErrPathNotAllowed, path)
	}
	return filepath.Join(dir, path), nil
}

// LoadResponse confirms a registered tokenizer.
type LoadResponse struct {
	registry.Entry
}

// ListResponse lists loaded tokenizers sorted by name.
type ListResponse struct {
	Tokenizers []registry.Entry `json:"tokenizers" cbor:"tokenizers"`
}

// EncodeRequest encodes Text with the named tokenizer. SpecialTokens
// defaults to true.
type EncodeRequest struct {
	Name          string `json:"name" cbor:"name"`
	Text          string `json:"text" cbor:"text"`
	SpecialTokens *bool  `json:"special_tokens,omitempty" cbor:"special_tokens,omitempty"`
}

func (r EncodeRequest) AllowSpecial() bool {
	return r.SpecialTokens == nil || *r.SpecialTokens
}

type EncodeResponse struct {
	IDs []uint32 `json:"ids" cbor:"ids"`
}

// DecodeRequest decodes ids with the named tokenizer. Ids come either as a
// list or packed (see PackRanks). SpecialTokens defaults to false.
type DecodeRequest struct {
	Name          string   `json:"name" cbor:"name"`
	IDs           []uint32 `json:"ids,omitempty" cbor:"ids,omitempty"`
	Packed        []byte   `json:"packed,omitempty" cbor:"packed,omitempty"`
	SpecialTokens *bool    `json:"special_tokens,omitempty" cbor:"special_tokens,omitempty"`
}

// Ranks returns the ids to decode, unpacking Packed when set.
func (r DecodeRequest) Ranks() ([]uint32, error) {
	if r.Packed != nil {
		if r.IDs != nil {
			return nil, errors.New("only one of ids or packed may be set")
		}
		return UnpackRanks(r.Packed)
	}
	return r.IDs, nil
}

func (r DecodeRequest) AllowSpecial() bool {
	return r.SpecialTokens != nil && *r.SpecialTokens
}

// DecodeResponse carries decoded text with invalid UTF-8 replaced.
type DecodeResponse struct {
	Text string `json:"text" cbor:"text"`
}

// UnstableRequest asks for the stable prefix and candidate completions of Text.
type UnstableRequest struct {
	Name string `json:"name" cbor:"name"`
	Text string `json:"text" cbor:"text"`
}

type UnstableResponse struct {
	Stable      []uint32   `json:"stable" cbor:"stable"`
	Completions [][]uint32 `json:"completions" cbor:"completions"`
}

// ChunkRequest splits Text into pieces of at most MaxTokens tokens.
type ChunkRequest struct {
	Name      string `json:"name" cbor:"name"`
	Text      string `json:"text" cbor:"text"`
	MaxTokens int    `json:"max_tokens" cbor:"max_tokens"`
}

type Chunk struct {
	Text string   `json:"text" cbor:"text"`
	IDs  []uint32 `json:"ids" cbor:"ids"`
}

type ChunkResponse struct {
	Chunks []Chunk `json:"chunks" cbor:"chunks"`
}

type HealthResponse struct {
	Status     string `json:"status" cbor:"status"`
	Version    string `json:"version" cbor:"version"`
	Tokenizers int    `json:"tokenizers" cbor:"tokenizers"`
}

type ErrorResponse struct {
	Error string `json:"error" cbor:"error"`
}
