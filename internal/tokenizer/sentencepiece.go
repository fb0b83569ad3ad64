package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/example/go-tokend/internal/bpe"
)

// spSep is the SentencePiece word-start marker (U+2581).
const spSep = "▁"

// SentencePiece implements Tokenizer using a pure-Go SentencePiece model.
// Encoding is delegated to the upstream library; decoding uses the piece
// table from the model proto, which the library does not expose.
type SentencePiece struct {
	proc   gosp.Sentencepiece
	pieces []spPiece
}

type spPiece struct {
	text    string
	control bool
}

var _ Tokenizer = (*SentencePiece)(nil)

// NewSentencePiece loads a SentencePiece model from the given path.
func NewSentencePiece(modelPath string) (*SentencePiece, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read sentencepiece model %q: %w", modelPath, err)
	}
	pieces, err := parsePieces(data)
	if err != nil {
		return nil, err
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	return &SentencePiece{proc: proc, pieces: pieces}, nil
}

// NewSentencePieceFromBytes loads a SentencePiece model from raw bytes.
// It writes the data to a temporary file and delegates to NewSentencePiece,
// because the upstream library only exposes a file-path API.
func NewSentencePieceFromBytes(data []byte) (*SentencePiece, error) {
	if len(data) == 0 {
		return nil, errors.New("sentencepiece model data must not be empty")
	}

	f, err := os.CreateTemp("", "sp-*.model")
	if err != nil {
		return nil, fmt.Errorf("create temp sentencepiece file: %w", err)
	}

	defer func() { _ = os.Remove(f.Name()) }() // best-effort temp file cleanup

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write sentencepiece model bytes: %w", err)
	}

	path := f.Name()

	err = f.Close()
	if err != nil {
		return nil, fmt.Errorf("close sentencepiece temp file: %w", err)
	}

	return NewSentencePiece(path)
}

func parsePieces(data []byte) ([]spPiece, error) {
	var model gosp.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("unmarshal sentencepiece model: %w", err)
	}

	pieces := make([]spPiece, len(model.GetPieces()))
	for i, p := range model.GetPieces() {
		switch p.GetType() {
		case gosp.ModelProto_SentencePiece_CONTROL, gosp.ModelProto_SentencePiece_UNKNOWN:
			pieces[i] = spPiece{text: p.GetPiece(), control: true}
		default:
			pieces[i] = spPiece{text: p.GetPiece()}
		}
	}
	if len(pieces) == 0 {
		return nil, errors.New("sentencepiece model has no pieces")
	}

	return pieces, nil
}

func (t *SentencePiece) Kind() string { return KindSentencePiece }

func (t *SentencePiece) VocabSize() int { return len(t.pieces) }

// Encode tokenizes text. Control pieces never match input text, so special
// has no effect.
func (t *SentencePiece) Encode(text string, _ bool) ([]uint32, error) {
	if text == "" {
		return []uint32{}, nil
	}

	ids := t.proc.TokenizeToIDs(text)

	result := make([]uint32, len(ids))
	for i, id := range ids {
		result[i] = uint32(id)
	}

	return result, nil
}

// Decode joins the pieces for ids, turning word-start markers into spaces
// and dropping the leading one. Control and unknown pieces are skipped
// unless special is set.
func (t *SentencePiece) Decode(ids []uint32, special bool) ([]byte, error) {
	var sb strings.Builder
	for _, id := range ids {
		if int(id) >= len(t.pieces) {
			return nil, &bpe.DecodeError{Token: id}
		}
		p := t.pieces[id]
		if p.control && !special {
			continue
		}
		sb.WriteString(p.text)
	}

	out := strings.ReplaceAll(sb.String(), spSep, " ")
	return []byte(strings.TrimPrefix(out, " ")), nil
}
