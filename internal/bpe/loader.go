package bpe

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
)

// Rank is the integer identifier of a vocabulary entry. It doubles as the emitted token.
type Rank = uint32

// Ranks maps raw token bytes (held in a string) to their rank.
type Ranks map[string]Rank

// ParseRanks reads a tiktoken vocabulary blob. Each non-empty line is
// base64_token + space + decimal rank. Later duplicates overwrite earlier ones.
func ParseRanks(blob []byte) (Ranks, error) {
	ranks := make(Ranks, bytes.Count(blob, []byte{'\n'})+1)
	lineNo := 0
	for len(blob) > 0 {
		var line []byte
		if i := bytes.IndexByte(blob, '\n'); i >= 0 {
			line, blob = blob[:i], blob[i+1:]
		} else {
			line, blob = blob, nil
		}
		lineNo++
		if len(line) == 0 {
			continue
		}

		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			return nil, &LoadError{Line: lineNo, Err: ErrInvalidRecord}
		}

		tok := make([]byte, base64.StdEncoding.DecodedLen(sp))
		n, err := base64.StdEncoding.Decode(tok, line[:sp])
		if err != nil {
			return nil, &LoadError{Line: lineNo, Err: fmt.Errorf("b64 decode: %w", err)}
		}

		rank, err := strconv.ParseUint(string(line[sp+1:]), 10, 32)
		if err != nil {
			return nil, &LoadError{Line: lineNo, Err: fmt.Errorf("rank parse: %w", err)}
		}

		ranks[string(tok[:n])] = Rank(rank)
	}
	return ranks, nil
}

// LoadRanksFile reads and parses a .tiktoken vocabulary file.
func LoadRanksFile(path string) (Ranks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %q: %w", path, err)
	}
	return ParseRanks(data)
}
