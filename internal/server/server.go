package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-tokend/internal/config"
	"github.com/example/go-tokend/internal/registry"
	"github.com/example/go-tokend/internal/tokenizer"
	"github.com/example/go-tokend/internal/wire"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	reg             *registry.Registry
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for cfg. A nil reg gets a fresh registry on first
// use, logging to the server's logger.
func New(cfg config.Config, reg *registry.Registry) *Server {
	logger := slog.Default()
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}
	return &Server{
		cfg:             cfg,
		reg:             reg,
		logger:          logger,
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Registry exposes the tokenizers the server is serving.
func (s *Server) Registry() *registry.Registry {
	if s.reg == nil {
		s.reg = registry.New(registry.WithLogger(s.logger))
	}
	return s.reg
}

// Preload builds every configured tokenizer concurrently and registers the
// ones that load. A failure cancels the remaining loads and is returned.
func (s *Server) Preload(ctx context.Context) error {
	reg := s.Registry()
	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.Server.Workers > 0 {
		g.SetLimit(s.cfg.Server.Workers)
	}

	for _, tc := range s.cfg.Tokenizers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			spec, err := tc.Spec(s.cfg.Paths.VocabDir)
			if err != nil {
				return fmt.Errorf("tokenizer %q: %w", tc.Name, err)
			}

			start := time.Now()
			tok, err := tokenizer.Load(spec)
			if err != nil {
				return fmt.Errorf("tokenizer %q: %w", tc.Name, err)
			}
			s.logger.Debug("tokenizer built",
				slog.String("tokenizer", tc.Name),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return reg.Load(tc.Name, tok)
		})
	}

	return g.Wait()
}

// Start preloads the configured tokenizers and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Preload(ctx); err != nil {
		return fmt.Errorf("preload: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	reg := s.Registry()
	h := NewHandler(reg,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		WithVocabDir(s.cfg.Paths.VocabDir),
		WithLogger(s.logger),
	)

	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("tokenizers", reg.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

// ProbeHTTP reports whether the server at addr answers GET /health with 200.
func ProbeHTTP(addr string) error {
	_, err := FetchHealth(addr)
	return err
}

// FetchHealth reads the health payload of the server at addr.
func FetchHealth(addr string) (wire.HealthResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return wire.HealthResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return wire.HealthResponse{}, fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return wire.HealthResponse{}, fmt.Errorf("read health body: %w", err)
	}
	var health wire.HealthResponse
	if err := wire.Unmarshal(resp.Header.Get("Content-Type"), body, &health); err != nil {
		return wire.HealthResponse{}, fmt.Errorf("decode health body: %w", err)
	}
	return health, nil
}
