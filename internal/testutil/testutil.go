// Package testutil provides shared fixtures and skip helpers for tests.
//
// The real vocabularies are large and are not committed. Tests that need
// one call RequireVocabFile, which skips with a clear reason when the file
// cannot be found, so the suite stays runnable in partial environments:
//
//	func TestCl100k(t *testing.T) {
//	    path := testutil.RequireVocabFile(t, "cl100k_base.tiktoken")
//	    ...
//	}
//
// CI fetches the pinned files once and points the suite at them:
//
//	tokend fetch --out "$HOME/.cache/tokend" cl100k_base o200k_base
//	TOKEND_TEST_VOCAB_DIR="$HOME/.cache/tokend" go test ./...
package testutil

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// VocabDirEnv names the directory searched first for vocabulary fixtures.
const VocabDirEnv = "TOKEND_TEST_VOCAB_DIR"

// RequireVocabFile returns the path of the named vocabulary file, looking in
// $TOKEND_TEST_VOCAB_DIR and then in testdata/ of the current directory and
// each of its parents. It skips the test when the file is absent.
func RequireVocabFile(tb testing.TB, name string) string {
	tb.Helper()

	if dir := os.Getenv(VocabDirEnv); dir != "" {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		tb.Skipf("vocabulary %q not found in %s=%q", name, VocabDirEnv, dir)
		return ""
	}

	dir, err := filepath.Abs(".")
	if err != nil {
		tb.Fatalf("abs path: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "testdata", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	tb.Skipf("vocabulary %q not found under testdata/; set %s to its directory", name, VocabDirEnv)
	return ""
}

// ByteLevelVocab renders a .tiktoken blob with every byte at its own value
// as rank and each merge at 256+i.
func ByteLevelVocab(merges ...string) []byte {
	var sb strings.Builder
	for b := 0; b < 256; b++ {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte{byte(b)}), b)
	}
	for i, m := range merges {
		fmt.Fprintf(&sb, "%s %d\n", base64.StdEncoding.EncodeToString([]byte(m)), 256+i)
	}
	return []byte(sb.String())
}

// WriteByteLevelVocab writes ByteLevelVocab(merges...) to dir/name and
// returns the path.
func WriteByteLevelVocab(tb testing.TB, dir, name string, merges ...string) string {
	tb.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, ByteLevelVocab(merges...), 0o600); err != nil {
		tb.Fatalf("write vocabulary fixture: %v", err)
	}
	return p
}
