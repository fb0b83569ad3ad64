package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/example/go-tokend/internal/bpe"
	"github.com/example/go-tokend/internal/testutil"
)

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

// tinyMerges gives "he"=256, "ll"=257, "hell"=258, "hello"=259.
var tinyMerges = []string{"he", "ll", "hell", "hello"}

const tinyEOT = 300

func newTinyTiktoken(t *testing.T) *Tiktoken {
	t.Helper()

	tok, err := NewTiktoken(testutil.ByteLevelVocab(tinyMerges...), []bpe.SpecialToken{{Text: bpe.EndOfText, Rank: tinyEOT}}, bpe.PatternCl100k)
	if err != nil {
		t.Fatalf("NewTiktoken: %v", err)
	}
	return tok
}

type piece struct {
	text string
	typ  gosp.ModelProto_SentencePiece_Type
}

// tinySentencePieceModel serializes a model with three control pieces, two
// whole words and single characters as fallback.
func tinySentencePieceModel(t *testing.T) []byte {
	t.Helper()

	pieces := []piece{
		{"<unk>", gosp.ModelProto_SentencePiece_UNKNOWN},  // 0
		{"<s>", gosp.ModelProto_SentencePiece_CONTROL},    // 1
		{"</s>", gosp.ModelProto_SentencePiece_CONTROL},   // 2
		{"▁hello", gosp.ModelProto_SentencePiece_NORMAL}, // 3
		{"▁world", gosp.ModelProto_SentencePiece_NORMAL}, // 4
		{"▁", gosp.ModelProto_SentencePiece_NORMAL},      // 5
	}
	for _, c := range "helowrd" {
		pieces = append(pieces, piece{string(c), gosp.ModelProto_SentencePiece_NORMAL})
	}

	model := &gosp.ModelProto{}
	for i, p := range pieces {
		score := float32(-10)
		if i == 3 || i == 4 {
			score = -1
		}
		model.Pieces = append(model.Pieces, &gosp.ModelProto_SentencePiece{
			Piece: proto.String(p.text),
			Score: proto.Float32(score),
			Type:  p.typ.Enum(),
		})
	}

	data, err := proto.Marshal(model)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	return data
}

// ---------------------------------------------------------------------------
// Tiktoken
// ---------------------------------------------------------------------------

func TestNewTiktoken_EmptyPattern(t *testing.T) {
	_, err := NewTiktoken(testutil.ByteLevelVocab(), nil, "")
	if !errors.Is(err, ErrEmptyPattern) {
		t.Fatalf("err = %v, want ErrEmptyPattern", err)
	}
}

func TestNewTiktoken_BadVocabulary(t *testing.T) {
	_, err := NewTiktoken([]byte("not-a-record\n"), nil, bpe.PatternCl100k)
	var le *bpe.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *bpe.LoadError", err)
	}
}

func TestNewTiktoken_PresetName(t *testing.T) {
	vocab := testutil.ByteLevelVocab(tinyMerges...)

	tok, err := NewTiktoken(vocab, nil, "r50k_base")
	if err != nil {
		t.Fatalf("NewTiktoken: %v", err)
	}
	if tok.Encoding() != "r50k_base" {
		t.Errorf("Encoding() = %q, want r50k_base", tok.Encoding())
	}
	want := []bpe.SpecialToken{{Text: bpe.EndOfText, Rank: 50256}}
	if diff := cmp.Diff(want, tok.SpecialTokens()); diff != "" {
		t.Errorf("SpecialTokens mismatch (-want +got):\n%s", diff)
	}

	custom, err := NewTiktoken(vocab, []bpe.SpecialToken{{Text: "<|x|>", Rank: 400}}, "r50k_base")
	if err != nil {
		t.Fatalf("NewTiktoken custom specials: %v", err)
	}
	if got := custom.SpecialTokens(); len(got) != 1 || got[0].Rank != 400 {
		t.Errorf("explicit specials not honored: %v", got)
	}
}

func TestTiktoken_EncodeDecode(t *testing.T) {
	tok := newTinyTiktoken(t)

	if tok.Kind() != KindTiktoken {
		t.Errorf("Kind() = %q", tok.Kind())
	}
	if tok.VocabSize() != 256+len(tinyMerges) {
		t.Errorf("VocabSize() = %d", tok.VocabSize())
	}

	ids, err := tok.Encode("hello<|endoftext|>", true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff([]uint32{259, tinyEOT}, ids); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}

	ordinary, err := tok.Encode("hello<|endoftext|>", false)
	if err != nil {
		t.Fatalf("Encode ordinary: %v", err)
	}
	for _, id := range ordinary {
		if id == tinyEOT {
			t.Fatalf("special rank emitted with special=false: %v", ordinary)
		}
	}

	text, err := tok.Decode(ids, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(text) != "hello<|endoftext|>" {
		t.Errorf("Decode = %q", text)
	}

	_, err = tok.Decode([]uint32{99999}, false)
	if !errors.Is(err, bpe.ErrUnknownToken) {
		t.Errorf("Decode unknown err = %v, want ErrUnknownToken", err)
	}
}

func TestTiktoken_EncodeWithUnstable(t *testing.T) {
	tok := newTinyTiktoken(t)

	stable, completions, err := tok.EncodeWithUnstable("hel")
	if err != nil {
		t.Fatalf("EncodeWithUnstable: %v", err)
	}
	if len(stable) != 0 {
		t.Errorf("stable = %v, want empty", stable)
	}
	found := false
	for _, c := range completions {
		if cmp.Equal(c, []uint32{259}) {
			found = true
		}
	}
	if !found {
		t.Errorf("completions %v missing [259]", completions)
	}
}

func TestNewTiktokenFromFile(t *testing.T) {
	path := testutil.WriteByteLevelVocab(t, t.TempDir(), "tiny.tiktoken", tinyMerges...)

	if _, err := NewTiktokenFromFile(path, nil, "cl100k_base"); err != nil {
		t.Fatalf("NewTiktokenFromFile: %v", err)
	}
	if _, err := NewTiktokenFromFile("", nil, "cl100k_base"); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("empty path err = %v", err)
	}
	if _, err := NewTiktokenFromFile(filepath.Join(t.TempDir(), "missing"), nil, "cl100k_base"); err == nil {
		t.Error("expected error for missing file")
	}
}

// ---------------------------------------------------------------------------
// SentencePiece
// ---------------------------------------------------------------------------

func TestNewSentencePiece_EmptyPath(t *testing.T) {
	_, err := NewSentencePiece("")
	if !errors.Is(err, ErrEmptyPath) {
		t.Errorf("expected ErrEmptyPath, got: %v", err)
	}
}

func TestNewSentencePiece_MissingFile(t *testing.T) {
	_, err := NewSentencePiece("/nonexistent/tokenizer.model")
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
}

func TestNewSentencePieceFromBytes_Empty(t *testing.T) {
	if _, err := NewSentencePieceFromBytes(nil); err == nil {
		t.Fatal("expected error for empty model data")
	}
}

func TestNewSentencePieceFromBytes_Garbage(t *testing.T) {
	if _, err := NewSentencePieceFromBytes([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected error for malformed model data")
	}
}

func TestSentencePiece_EncodeDecode(t *testing.T) {
	tok, err := NewSentencePieceFromBytes(tinySentencePieceModel(t))
	if err != nil {
		t.Fatalf("NewSentencePieceFromBytes: %v", err)
	}

	if tok.Kind() != KindSentencePiece {
		t.Errorf("Kind() = %q", tok.Kind())
	}

	ids, err := tok.Encode("hello world", true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff([]uint32{3, 4}, ids); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}

	empty, err := tok.Encode("", true)
	if err != nil || len(empty) != 0 {
		t.Errorf("Encode(\"\") = %v, %v", empty, err)
	}

	text, err := tok.Decode([]uint32{1, 3, 4, 2}, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(text) != "hello world" {
		t.Errorf("Decode = %q, want %q", text, "hello world")
	}

	withControl, err := tok.Decode([]uint32{1, 3}, true)
	if err != nil {
		t.Fatalf("Decode special: %v", err)
	}
	if string(withControl) != "<s> hello" {
		t.Errorf("Decode special = %q, want %q", withControl, "<s> hello")
	}

	if _, err := tok.Decode([]uint32{1000}, false); !errors.Is(err, bpe.ErrUnknownToken) {
		t.Errorf("Decode out of range err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	vocabPath := testutil.WriteByteLevelVocab(t, dir, "tiny.tiktoken", tinyMerges...)
	model := tinySentencePieceModel(t)
	modelPath := filepath.Join(dir, "tiny.model")
	if err := os.WriteFile(modelPath, model, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}

	tests := []struct {
		name string
		spec Spec
		kind string
	}{
		{"tiktoken path", Spec{Path: vocabPath, Pattern: "cl100k_base"}, KindTiktoken},
		{"tiktoken data", Spec{Kind: KindTiktoken, Data: testutil.ByteLevelVocab(), Pattern: bpe.PatternR50k}, KindTiktoken},
		{"sentencepiece path", Spec{Kind: KindSentencePiece, Path: modelPath}, KindSentencePiece},
		{"sentencepiece data", Spec{Kind: KindSentencePiece, Data: model}, KindSentencePiece},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := Load(tc.spec)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tok.Kind() != tc.kind {
				t.Errorf("Kind() = %q, want %q", tok.Kind(), tc.kind)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(Spec{Kind: "wordpiece"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind err = %v", err)
	}

	tok, err := Load(Spec{Data: []byte("bad line\n"), Pattern: bpe.PatternCl100k})
	if err == nil {
		t.Fatal("expected load error")
	}
	if tok != nil {
		t.Errorf("Load returned non-nil tokenizer %v on error", tok)
	}

	_, err = Load(Spec{Data: testutil.ByteLevelVocab(), Pattern: "("})
	if !errors.Is(err, bpe.ErrInvalidPattern) {
		t.Errorf("bad pattern err = %v, want ErrInvalidPattern", err)
	}
}
