// Package registry holds the tokenizers a tokend process is serving, keyed
// by name. It is safe for concurrent use: lookups take a read lock and
// load/unload take the write lock.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/go-tokend/internal/tokenizer"
)

// ErrNotFound is returned by Get for a name that is not loaded.
var ErrNotFound = errors.New("tokenizer not loaded")

// Entry describes a loaded tokenizer.
type Entry struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	VocabSize int    `json:"vocab_size"`
}

// Registry is a name-keyed set of live tokenizers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]tokenizer.Tokenizer
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for load and unload events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]tokenizer.Tokenizer),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load registers tok under name, replacing any tokenizer already there.
func (r *Registry) Load(name string, tok tokenizer.Tokenizer) error {
	if name == "" {
		return errors.New("tokenizer name must not be empty")
	}
	if tok == nil {
		return fmt.Errorf("tokenizer %q is nil", name)
	}

	r.mu.Lock()
	_, replaced := r.byName[name]
	r.byName[name] = tok
	r.mu.Unlock()

	r.logger.Info("tokenizer loaded",
		"tokenizer", name,
		"kind", tok.Kind(),
		"vocab_size", tok.VocabSize(),
		"replaced", replaced,
	)
	return nil
}

// Unload removes name and reports whether it was present.
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	_, ok := r.byName[name]
	delete(r.byName, name)
	r.mu.Unlock()

	if ok {
		r.logger.Info("tokenizer unloaded", "tokenizer", name)
	}
	return ok
}

func (r *Registry) Get(name string) (tokenizer.Tokenizer, error) {
	r.mu.RLock()
	tok, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return tok, nil
}

// List returns the loaded tokenizers sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.byName))
	for name, tok := range r.byName {
		out = append(out, Entry{Name: name, Kind: tok.Kind(), VocabSize: tok.VocabSize()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
