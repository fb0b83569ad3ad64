// Package vocab fetches published vocabulary files and pins them by checksum.
package vocab

import (
	"fmt"
	"strings"

	"github.com/example/go-tokend/internal/bpe"
)

// DefaultBaseURL is where the public tiktoken vocabularies are published.
const DefaultBaseURL = "https://openaipublic.blob.core.windows.net/encodings/"

type Manifest struct {
	BaseURL string `json:"base_url"`
	Files   []File `json:"files"`
}

type File struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
}

var pinned = map[string]string{
	"r50k_base":   "306cd27f03c1a714eca7108e03d66b7dc042abe8c258b44c199a7ed9838dd930",
	"p50k_base":   "94b5ca7dff4d00767bc256fdd1b27e5b17361d7b8a5f968547f9f23eb70d2069",
	"cl100k_base": "223921b76ee99bde995b7ff738513eef100fb51d18c93597a113bcffe865b2a7",
	"o200k_base":  "446a9538cb6c348e3516120d7c08b09f57c36495e2acfffe59a5bf8b0cfb1a2d",
}

// Filename is the published file name for an encoding.
func Filename(encoding string) string { return encoding + ".tiktoken" }

// PinnedManifest lists the files for the named encodings, or for every
// preset encoding when names is empty.
func PinnedManifest(baseURL string, names ...string) (Manifest, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if len(names) == 0 {
		names = bpe.EncodingNames()
	}

	m := Manifest{BaseURL: baseURL}
	for _, name := range names {
		sum, ok := pinned[name]
		if !ok {
			return Manifest{}, fmt.Errorf("no pinned vocabulary for encoding %q", name)
		}
		m.Files = append(m.Files, File{Filename: Filename(name), SHA256: sum})
	}
	return m, nil
}
