package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-tokend/internal/bpe"
	"github.com/example/go-tokend/internal/config"
	"github.com/example/go-tokend/internal/registry"
	"github.com/example/go-tokend/internal/server"
	"github.com/example/go-tokend/internal/testutil"
	"github.com/example/go-tokend/internal/tokenizer"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	orig := activeCfg
	origFile := cfgFile
	t.Cleanup(func() {
		activeCfg = orig
		cfgFile = origFile
	})

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func tinyVocab(t *testing.T) string {
	t.Helper()
	return testutil.WriteByteLevelVocab(t, t.TempDir(), "tiny.tiktoken", "he", "ll", "hell", "hello")
}

// ---------------------------------------------------------------------------
// Tokenizer selection
// ---------------------------------------------------------------------------

func TestTokenizerFlags_Resolve(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tokenizers = []config.TokenizerConfig{{Name: "a", Path: "a.tiktoken", Encoding: "cl100k_base"}}

	tc, err := tokenizerFlags{}.resolve(cfg)
	if err != nil || tc.Name != "a" {
		t.Fatalf("lone tokenizer: got %+v, %v", tc, err)
	}

	if _, err := (tokenizerFlags{name: "missing"}).resolve(cfg); err == nil {
		t.Error("want error for unknown tokenizer name")
	}

	tc, err = tokenizerFlags{path: "x.tiktoken"}.resolve(cfg)
	if err != nil {
		t.Fatalf("adhoc: %v", err)
	}
	if tc.Encoding != "cl100k_base" {
		t.Errorf("adhoc encoding = %q, want cl100k_base", tc.Encoding)
	}

	cfg.Tokenizers = append(cfg.Tokenizers, config.TokenizerConfig{Name: "b", Path: "b", Encoding: "r50k_base"})
	if _, err := (tokenizerFlags{}).resolve(cfg); err == nil {
		t.Error("want error when several tokenizers are configured and none selected")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3", " 4\n5 "})
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	want := []uint32{1, 2, 3, 4, 5}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}

	if _, err := parseIDs([]string{"12x"}); err == nil {
		t.Error("want error for malformed id")
	}
	if _, err := parseIDs([]string{"4294967296"}); err == nil {
		t.Error("want error for id overflowing uint32")
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestEncodeCmd_AdHocVocab(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "", "encode", "--vocab", vocab, "hello hel")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := strings.TrimSpace(out); got != "259 32 256 108" {
		t.Errorf("encode output = %q, want %q", got, "259 32 256 108")
	}
}

func TestEncodeCmd_JSONFromStdin(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "hello", "encode", "--vocab", vocab, "--json")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var ids []uint32
	if err := json.Unmarshal([]byte(out), &ids); err != nil {
		t.Fatalf("decode json %q: %v", out, err)
	}
	if len(ids) != 1 || ids[0] != 259 {
		t.Errorf("ids = %v, want [259]", ids)
	}
}

func TestDecodeCmd_RoundTrip(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "", "decode", "--vocab", vocab, "256", "257,111")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.TrimSpace(out); got != "hello" {
		t.Errorf("decode output = %q, want hello", got)
	}
}

func TestDecodeCmd_UnknownToken(t *testing.T) {
	vocab := tinyVocab(t)

	if _, err := runCLI(t, "", "decode", "--vocab", vocab, "999999"); err == nil {
		t.Fatal("want error decoding an unknown token")
	}
}

func TestCompleteCmd_PrintsStableAndCompletions(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "", "complete", "--vocab", vocab, "hel")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.HasPrefix(out, "stable:") {
		t.Errorf("output %q does not start with stable line", out)
	}
	if !strings.Contains(out, `"hello"`) {
		t.Errorf("output %q does not list the hello completion", out)
	}
}

func TestEncodeCmd_ConfiguredTokenizer(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteByteLevelVocab(t, dir, "tiny.tiktoken", "he", "ll")

	cfgPath := filepath.Join(dir, "tokend.yaml")
	yaml := "paths:\n  vocab_dir: " + dir + "\ntokenizers:\n  - name: tiny\n    path: tiny.tiktoken\n    encoding: cl100k_base\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "", "--config", cfgPath, "encode", "-t", "tiny", "hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := strings.TrimSpace(out); got != "256 257 111" {
		t.Errorf("encode output = %q, want %q", got, "256 257 111")
	}
}

func TestBenchCmd_JSON(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "", "bench", "--vocab", vocab, "--text", "hello hello", "--runs", "2", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bench json %q: %v", out, err)
	}
}

func TestBenchCmd_RejectsBadFlags(t *testing.T) {
	vocab := tinyVocab(t)

	cases := [][]string{
		{"bench", "--vocab", vocab},
		{"bench", "--vocab", vocab, "--text", "x", "--runs", "0"},
		{"bench", "--vocab", vocab, "--text", "x", "--format", "csv"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, "", args...); err == nil {
			t.Errorf("%v: want error", args)
		}
	}
}

func TestDoctorCmd_FailsOnMissingVocab(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tokend.yaml")
	yaml := "paths:\n  vocab_dir: " + dir + "\ntokenizers:\n  - name: gone\n    path: gone.tiktoken\n    encoding: cl100k_base\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := runCLI(t, "", "--config", cfgPath, "doctor"); err == nil {
		t.Fatal("want doctor failure for missing vocabulary")
	}
}

func TestFetchCmd_RequiresOutDir(t *testing.T) {
	if _, err := runCLI(t, "", "fetch", "cl100k_base"); err == nil {
		t.Fatal("want error without an output directory")
	}
}

func TestFetchCmd_UnknownEncoding(t *testing.T) {
	if _, err := runCLI(t, "", "fetch", "--out", t.TempDir(), "gpt2"); err == nil {
		t.Fatal("want error for an encoding without a pinned vocabulary")
	}
}

func TestChunkCmd_SplitsByBudget(t *testing.T) {
	vocab := tinyVocab(t)

	out, err := runCLI(t, "", "chunk", "--vocab", vocab, "--max-tokens", "5", "hello. hello. hello.")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 chunks, got %q", out)
	}
	if lines[0] != "[0] 5 tokens: hello. hello." {
		t.Errorf("first chunk = %q", lines[0])
	}
}

func TestHealthCmd_PrintsPayload(t *testing.T) {
	tok, err := tokenizer.NewTiktokenFromFile(tinyVocab(t), nil, bpe.PatternCl100k)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reg := registry.New(registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := reg.Load("tiny", tok); err != nil {
		t.Fatalf("registry load: %v", err)
	}
	srv := httptest.NewServer(server.NewHandler(reg))
	defer srv.Close()

	out, err := runCLI(t, "", "health", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.HasPrefix(out, "ok version=") || !strings.HasSuffix(out, " tokenizers=1\n") {
		t.Errorf("health output = %q", out)
	}
}

func TestHealthCmd_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	if _, err := runCLI(t, "", "health", "--addr", addr); err == nil {
		t.Fatal("want error for a stopped server")
	}
}
