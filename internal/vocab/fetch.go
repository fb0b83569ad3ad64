package vocab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/example/go-tokend/internal/bpe"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

type FetchOptions struct {
	Manifest Manifest
	OutDir   string
	// Client defaults to a client with a 2 minute timeout.
	Client *http.Client
	Stdout io.Writer
}

type lockManifest struct {
	BaseURL   string                `json:"base_url"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	SHA256 string `json:"sha256"`
	Ranks  int    `json:"ranks"`
}

// LockFile is written to the output directory after a fetch.
const LockFile = "vocab-manifest.lock.json"

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Fetch downloads every manifest file missing from OutDir, verifies its
// checksum and that it parses as a vocabulary, then records it in the lock
// manifest. Files already present with a matching checksum are skipped.
func Fetch(ctx context.Context, opts FetchOptions) error {
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFile)
	lock := readLockManifest(lockPath)
	lock.BaseURL = opts.Manifest.BaseURL
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	for _, f := range opts.Manifest.Files {
		rec, err := fetchOne(ctx, client, opts, f)
		if err != nil {
			return err
		}
		if prev, ok := lock.Files[f.Filename]; ok && prev.SHA256 == rec.SHA256 && rec.Ranks == 0 {
			rec.Ranks = prev.Ranks
		}
		lock.Files[f.Filename] = rec
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

// fetchOne makes f present and verified in opts.OutDir. A skipped file
// reports zero ranks.
func fetchOne(ctx context.Context, client *http.Client, opts FetchOptions, f File) (lockRecord, error) {
	expected := strings.ToLower(f.SHA256)
	if !isSHA256Hex(expected) {
		return lockRecord{}, fmt.Errorf("%s: invalid pinned checksum %q", f.Filename, f.SHA256)
	}
	localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))

	ok, err := checksumMatches(localPath, expected)
	if err != nil {
		return lockRecord{}, err
	}
	if ok {
		fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
		return lockRecord{SHA256: expected}, nil
	}

	url := opts.Manifest.BaseURL + f.Filename
	fmt.Fprintf(opts.Stdout, "download %s -> %s\n", url, localPath)
	actual, err := download(ctx, client, url, localPath, opts.Stdout)
	if err != nil {
		return lockRecord{}, err
	}
	if actual != expected {
		_ = os.Remove(localPath)
		return lockRecord{}, fmt.Errorf("%w for %s: expected %s got %s", ErrChecksumMismatch, f.Filename, expected, actual)
	}

	ranks, err := bpe.LoadRanksFile(localPath)
	if err != nil {
		return lockRecord{}, fmt.Errorf("verify %s: %w", f.Filename, err)
	}
	fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s, %d ranks)\n", f.Filename, actual, len(ranks))
	return lockRecord{SHA256: expected, Ranks: len(ranks)}, nil
}

func checksumMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	actual, err := fileSHA256(path)
	return actual == expected, err
}

func download(ctx context.Context, client *http.Client, url, outPath string, stdout io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", url, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	pw := &progressWriter{w: io.MultiWriter(fh, h), out: stdout, total: resp.ContentLength, last: time.Now()}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

type progressWriter struct {
	w       io.Writer
	out     io.Writer
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  progress: %d bytes\n", p.written)
		}
		p.last = time.Now()
	}
	return n, err
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	out := lockManifest{Files: map[string]lockRecord{}}
	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
