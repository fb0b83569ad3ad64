package bpe

import "fmt"

// part is a boundary in the piece being merged. rank is the rank of the
// byte range from this boundary to the one two positions further on, and
// is only meaningful when ranked is set.
type part struct {
	start  int
	rank   Rank
	ranked bool
}

// pairRank looks up the range spanning parts[i] to parts[i+skip+2]. A skip
// of 1 looks past parts[i+1], which the caller is about to remove.
func pairRank(ranks Ranks, piece []byte, parts []part, i, skip int) (Rank, bool) {
	if i+skip+2 >= len(parts) {
		return 0, false
	}
	r, ok := ranks[string(piece[parts[i].start:parts[i+skip+2].start])]
	return r, ok
}

// bytePairMerge returns the final part boundaries for piece, including the
// trailing boundary at len(piece).
//
// Each round does a linear scan for the lowest rank. n is usually small
// enough that this beats a heap.
func bytePairMerge(ranks Ranks, piece []byte) []part {
	parts := make([]part, len(piece)+1)
	for i := range parts {
		parts[i].start = i
	}
	for i := 0; i+2 < len(parts); i++ {
		parts[i].rank, parts[i].ranked = pairRank(ranks, piece, parts, i, 0)
	}

	for len(parts) > 1 {
		minIdx := -1
		var minRank Rank
		for i := 0; i < len(parts)-1; i++ {
			// strictly smaller: the leftmost of equal ranks wins
			if parts[i].ranked && (minIdx < 0 || parts[i].rank < minRank) {
				minIdx, minRank = i, parts[i].rank
			}
		}
		if minIdx < 0 {
			break
		}

		parts[minIdx].rank, parts[minIdx].ranked = pairRank(ranks, piece, parts, minIdx, 1)
		if minIdx > 0 {
			parts[minIdx-1].rank, parts[minIdx-1].ranked = pairRank(ranks, piece, parts, minIdx-1, 1)
		}
		parts = append(parts[:minIdx+1], parts[minIdx+2:]...)
	}
	return parts
}

// BytePairEncode splits piece into vocabulary entries, merging byte pairs
// in rank order, and returns their ranks left to right.
func BytePairEncode(piece []byte, ranks Ranks) ([]Rank, error) {
	if len(piece) == 0 {
		return nil, nil
	}
	if len(piece) == 1 {
		r, ok := ranks[string(piece)]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%02x", ErrMissingByte, piece[0])
		}
		return []Rank{r}, nil
	}

	parts := bytePairMerge(ranks, piece)
	out := make([]Rank, 0, len(parts)-1)
	for i := 0; i+1 < len(parts); i++ {
		seg := piece[parts[i].start:parts[i+1].start]
		r, ok := ranks[string(seg)]
		if !ok {
			// only reachable for unmerged single bytes
			return nil, fmt.Errorf("%w: 0x%02x", ErrMissingByte, seg[0])
		}
		out = append(out, r)
	}
	return out, nil
}
