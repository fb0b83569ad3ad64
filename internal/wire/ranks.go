package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PackRanks frames ids as consecutive 4-byte little-endian values.
func PackRanks(ids []uint32) []byte {
	out := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(out[4*i:], id)
	}
	return out
}

// UnpackRanks reverses PackRanks. The length of b must be a multiple of 4.
func UnpackRanks(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed ranks: length %d is not a multiple of 4", len(b))
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out, nil
}

// Lossy converts decoded bytes to a string, replacing invalid UTF-8 with
// U+FFFD. Decoded token sequences may end mid-character.
func Lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
