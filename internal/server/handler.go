package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-tokend/internal/bpe"
	"github.com/example/go-tokend/internal/registry"
	"github.com/example/go-tokend/internal/text"
	"github.com/example/go-tokend/internal/tokenizer"
	"github.com/example/go-tokend/internal/wire"
)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	maxBodyBytes int64
	workers      int
	vocabDir     string
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes: 1 << 20,
		maxBodyBytes: 16 << 20,
		workers:      4,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum text length in bytes for encode requests.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxBodyBytes caps the size of any request body, including vocabulary
// uploads.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent codec calls. Zero or
// less disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithVocabDir allows POST /tokenizers to name files relative to dir.
func WithVocabDir(dir string) Option {
	return func(o *options) { o.vocabDir = dir }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	reg  *registry.Registry
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler serving the tokenizers in reg.
func NewHandler(reg *registry.Registry, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		reg:  reg,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /tokenizers", h.handleList)
	mux.HandleFunc("POST /tokenizers", h.handleLoad)
	mux.HandleFunc("DELETE /tokenizers/{name}", h.handleUnload)
	mux.HandleFunc("POST /encode", h.handleEncode)
	mux.HandleFunc("POST /encode/unstable", h.handleUnstable)
	mux.HandleFunc("POST /decode", h.handleDecode)
	mux.HandleFunc("POST /chunk", h.handleChunk)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, wire.HealthResponse{
		Status:     "ok",
		Version:    buildVersion(),
		Tokenizers: h.reg.Len(),
	})
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, wire.ListResponse{Tokenizers: h.reg.List()})
}

func (h *handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req wire.LoadRequest
	if !h.readRequest(w, r, &req) {
		return
	}

	spec, err := req.Spec(h.opts.vocabDir)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, wire.ErrPathNotAllowed) {
			status = http.StatusForbidden
		}
		writeError(w, r, status, err.Error())
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	start := time.Now()
	tok, err := tokenizer.Load(spec)
	release()
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.WarnContext(r.Context(), "tokenizer load failed",
			slog.String("tokenizer", req.Name),
			slog.String("kind", spec.Kind),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reg.Load(req.Name, tok); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	respond(w, r, http.StatusCreated, wire.LoadResponse{Entry: registry.Entry{
		Name:      req.Name,
		Kind:      tok.Kind(),
		VocabSize: tok.VocabSize(),
	}})
}

func (h *handler) handleUnload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.Unload(name) {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("%v: %q", registry.ErrNotFound, name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req wire.EncodeRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	if !h.checkText(w, r, req.Text) {
		return
	}
	tok, ok := h.lookup(w, r, req.Name)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	start := time.Now()
	ids, err := tok.Encode(req.Text, req.AllowSpecial())
	release()
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.ErrorContext(r.Context(), "encode failed",
			slog.String("tokenizer", req.Name),
			slog.Int("text_len", len(req.Text)),
			slog.String("error", err.Error()),
		)
		writeError(w, r, codecStatus(err), err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "encode complete",
		slog.String("tokenizer", req.Name),
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", len(ids)),
		slog.Int64("duration_ms", durationMS),
	)

	if wantsOctetStream(r) {
		writeBytes(w, http.StatusOK, wire.PackRanks(ids))
		return
	}
	if ids == nil {
		ids = []uint32{}
	}
	respond(w, r, http.StatusOK, wire.EncodeResponse{IDs: ids})
}

func (h *handler) handleUnstable(w http.ResponseWriter, r *http.Request) {
	var req wire.UnstableRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	if !h.checkText(w, r, req.Text) {
		return
	}
	tok, ok := h.lookup(w, r, req.Name)
	if !ok {
		return
	}
	ue, ok := tok.(tokenizer.UnstableEncoder)
	if !ok {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("tokenizer %q (%s) does not support unstable encoding", req.Name, tok.Kind()))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	start := time.Now()
	stable, completions, err := ue.EncodeWithUnstable(req.Text)
	release()
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.ErrorContext(r.Context(), "unstable encode failed",
			slog.String("tokenizer", req.Name),
			slog.Int("text_len", len(req.Text)),
			slog.String("error", err.Error()),
		)
		writeError(w, r, codecStatus(err), err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "unstable encode complete",
		slog.String("tokenizer", req.Name),
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", len(stable)),
		slog.Int("completions", len(completions)),
		slog.Int64("duration_ms", durationMS),
	)

	if stable == nil {
		stable = []uint32{}
	}
	if completions == nil {
		completions = [][]uint32{}
	}
	respond(w, r, http.StatusOK, wire.UnstableResponse{Stable: stable, Completions: completions})
}

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readDecodeRequest(w, r)
	if !ok {
		return
	}
	ids, err := req.Ranks()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, ok := h.lookup(w, r, req.Name)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	start := time.Now()
	decoded, err := tok.Decode(ids, req.AllowSpecial())
	release()
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.WarnContext(r.Context(), "decode failed",
			slog.String("tokenizer", req.Name),
			slog.Int("tokens", len(ids)),
			slog.String("error", err.Error()),
		)
		writeError(w, r, codecStatus(err), err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "decode complete",
		slog.String("tokenizer", req.Name),
		slog.Int("tokens", len(ids)),
		slog.Int("bytes", len(decoded)),
		slog.Int64("duration_ms", durationMS),
	)

	if wantsOctetStream(r) {
		writeBytes(w, http.StatusOK, decoded)
		return
	}
	respond(w, r, http.StatusOK, wire.DecodeResponse{Text: wire.Lossy(decoded)})
}

func (h *handler) handleChunk(w http.ResponseWriter, r *http.Request) {
	var req wire.ChunkRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	if !h.checkText(w, r, req.Text) {
		return
	}
	tok, ok := h.lookup(w, r, req.Name)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	start := time.Now()
	chunks, err := text.ChunkByTokens(req.Text, tok, req.MaxTokens)
	release()
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		status := codecStatus(err)
		if errors.Is(err, text.ErrInvalidBudget) || errors.Is(err, text.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		h.log.WarnContext(r.Context(), "chunk failed",
			slog.String("tokenizer", req.Name),
			slog.Int("text_len", len(req.Text)),
			slog.String("error", err.Error()),
		)
		writeError(w, r, status, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "chunk complete",
		slog.String("tokenizer", req.Name),
		slog.Int("text_len", len(req.Text)),
		slog.Int("chunks", len(chunks)),
		slog.Int64("duration_ms", durationMS),
	)

	resp := wire.ChunkResponse{Chunks: make([]wire.Chunk, len(chunks))}
	for i, c := range chunks {
		ids := c.Tokens
		if ids == nil {
			ids = []uint32{}
		}
		resp.Chunks[i] = wire.Chunk{Text: c.Text, IDs: ids}
	}
	respond(w, r, http.StatusOK, resp)
}

// readDecodeRequest accepts either a structured body or, for
// application/octet-stream, packed ranks with name and special_tokens in
// the query string.
func (h *handler) readDecodeRequest(w http.ResponseWriter, r *http.Request) (wire.DecodeRequest, bool) {
	var req wire.DecodeRequest
	if wire.MediaType(r.Header.Get("Content-Type")) != wire.ContentTypeOctetStream {
		return req, h.readRequest(w, r, &req)
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return req, false
	}
	q := r.URL.Query()
	req.Name = q.Get("name")
	req.Packed = body
	if req.Packed == nil {
		req.Packed = []byte{}
	}
	if s := q.Get("special_tokens"); s != "" {
		special, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid special_tokens: "+err.Error())
			return req, false
		}
		req.SpecialTokens = &special
	}
	return req, true
}

// ---------------------------------------------------------------------------
// request helpers
// ---------------------------------------------------------------------------

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		writeError(w, r, http.StatusBadRequest, "request body is required")
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", mbe.Limit))
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	return body, true
}

func (h *handler) readRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	body, ok := h.readBody(w, r)
	if !ok {
		return false
	}
	if err := wire.Unmarshal(r.Header.Get("Content-Type"), body, v); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, wire.ErrUnsupportedContentType) {
			status = http.StatusUnsupportedMediaType
		}
		writeError(w, r, status, "invalid request: "+err.Error())
		return false
	}
	return true
}

func (h *handler) checkText(w http.ResponseWriter, r *http.Request, s string) bool {
	if len(s) > h.opts.maxTextBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return false
	}
	return true
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request, name string) (tokenizer.Tokenizer, bool) {
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name field is required")
		return nil, false
	}
	tok, err := h.reg.Get(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return nil, false
	}
	return tok, true
}

// acquire takes a worker slot, honouring cancellation while waiting. The
// returned release must be called once the codec call returns.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}
	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

// codecStatus maps codec errors to HTTP statuses.
func codecStatus(err error) int {
	switch {
	case errors.Is(err, bpe.ErrUnknownToken):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bpe.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ---------------------------------------------------------------------------
// response helpers
// ---------------------------------------------------------------------------

// responseType picks CBOR when the client accepts it ahead of JSON.
func responseType(r *http.Request) string {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		switch wire.MediaType(strings.TrimSpace(part)) {
		case wire.ContentTypeCBOR:
			return wire.ContentTypeCBOR
		case wire.ContentTypeJSON:
			return wire.ContentTypeJSON
		}
	}
	return wire.ContentTypeJSON
}

func wantsOctetStream(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if wire.MediaType(strings.TrimSpace(part)) == wire.ContentTypeOctetStream {
			return true
		}
	}
	return false
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	ct := responseType(r)
	body, err := wire.Marshal(ct, v)
	if err != nil {
		ct = wire.ContentTypeJSON
		status = http.StatusInternalServerError
		body, _ = wire.Marshal(ct, wire.ErrorResponse{Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeBytes(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", wire.ContentTypeOctetStream)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respond(w, r, status, wire.ErrorResponse{Error: msg})
}
