package bpe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is returned for a vocabulary line without a "<token> <rank>" shape.
	ErrInvalidRecord = errors.New("invalid vocabulary record")
	// ErrInvalidPattern is returned when a segmentation or special-token pattern fails to compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidSpecialToken is returned for a special token with an empty literal.
	ErrInvalidSpecialToken = errors.New("invalid special token")
	// ErrDuplicateRank is returned when two vocabulary entries share a rank.
	ErrDuplicateRank = errors.New("duplicate rank in vocabulary")
	// ErrMissingByte is returned when a single-byte entry is absent from the vocabulary.
	ErrMissingByte = errors.New("vocabulary is missing a single-byte token")
	// ErrUnknownToken is matched by every DecodeError.
	ErrUnknownToken = errors.New("unknown token")
	// ErrInvalidUTF8 is returned when text passed to the encoder is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// LoadError reports a malformed vocabulary line. Line is 1-based.
type LoadError struct {
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("vocabulary line %d: %v", e.Line, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DecodeError reports a rank that is neither an ordinary nor a special token.
type DecodeError struct {
	Token Rank
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode token %d: %v", e.Token, ErrUnknownToken)
}

func (e *DecodeError) Is(target error) bool { return target == ErrUnknownToken }
