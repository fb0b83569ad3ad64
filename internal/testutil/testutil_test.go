package testutil_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-tokend/internal/testutil"
)

func TestRequireVocabFile_FindsFileInEnvDir(t *testing.T) {
	dir := t.TempDir()
	want := testutil.WriteByteLevelVocab(t, dir, "tiny.tiktoken")
	t.Setenv(testutil.VocabDirEnv, dir)

	if got := testutil.RequireVocabFile(t, "tiny.tiktoken"); got != want {
		t.Errorf("RequireVocabFile = %q, want %q", got, want)
	}
}

func TestRequireVocabFile_SkipsWhenAbsent(t *testing.T) {
	t.Setenv(testutil.VocabDirEnv, t.TempDir())

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireVocabFile(fakeT, "absent.tiktoken")
	if !skipped {
		t.Error("expected RequireVocabFile to skip when the file is absent")
	}
}

func TestRequireVocabFile_SkipsWithoutTestdata(t *testing.T) {
	t.Setenv(testutil.VocabDirEnv, "")
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireVocabFile(fakeT, "definitely-not-here.tiktoken")
	if !skipped {
		t.Error("expected RequireVocabFile to skip")
	}
}

func TestByteLevelVocab(t *testing.T) {
	blob := testutil.ByteLevelVocab("ab")

	lines := bytes.Split(bytes.TrimSuffix(blob, []byte("\n")), []byte("\n"))
	if len(lines) != 257 {
		t.Fatalf("got %d lines, want 257", len(lines))
	}
	if string(lines[256]) != "YWI= 256" {
		t.Errorf("merge line = %q, want %q", lines[256], "YWI= 256")
	}

	p := testutil.WriteByteLevelVocab(t, t.TempDir(), "v.tiktoken")
	if filepath.Base(p) != "v.tiktoken" {
		t.Errorf("unexpected path %q", p)
	}
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip, that would skip the outer test.
}
