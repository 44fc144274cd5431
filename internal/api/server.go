// Package api is the HTTP/JSON request adapter. It decodes payloads,
// validates required fields, calls the stores, index, and engine in the
// correct order, and serializes responses. Error responses are plain
// text with a 4xx/5xx status; the error-to-status mapping keys off the
// structured error category.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	verrors "github.com/voxide/voxrag/internal/errors"
	"github.com/voxide/voxrag/internal/index"
	"github.com/voxide/voxrag/internal/search"
	"github.com/voxide/voxrag/internal/store"
)

// ServiceName is reported by the root descriptor endpoint.
const ServiceName = "voxrag"

// Server wires the engine plus direct store references (for ingest and
// health) behind the HTTP surface.
type Server struct {
	echo   *echo.Echo
	engine *search.Engine
	index  *index.HNSW
	meta   store.MetadataStore
	vecs   store.VectorStore
	opts   search.Options
	logger *slog.Logger
}

// NewServer builds the adapter. opts supplies the fixed retrieval
// weights and candidate count; per-request bodies override namespace
// and token budget only.
func NewServer(eng *search.Engine, idx *index.HNSW, meta store.MetadataStore, vecs store.VectorStore, opts search.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		engine: eng,
		index:  idx,
		meta:   meta,
		vecs:   vecs,
		opts:   opts,
		logger: logger,
	}

	e.HTTPErrorHandler = s.errorHandler
	e.Use(s.requestLogger)

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.GET("/stats", s.handleStats)
	e.POST("/reset", s.handleReset)
	e.POST("/ingest", s.handleIngest)
	e.POST("/ingest_message", s.handleIngestMessage)
	e.POST("/retrieve", s.handleRetrieve)

	return s
}

// Handler exposes the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("api server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.echo.Close()
}

// errorHandler renders every error as plain text. Echo's default writes
// JSON envelopes; the engine's contract is text plus status code.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	var ve *verrors.VoxError
	switch {
	case errors.As(err, &he):
		status = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	case errors.As(err, &ve):
		status = statusForCategory(ve.Category)
		msg = ve.Message
	}

	if err := c.String(status, msg); err != nil {
		s.logger.Warn("error response write failed", "error", err)
	}
}

func statusForCategory(cat verrors.Category) int {
	switch cat {
	case verrors.CategoryValidation:
		return http.StatusBadRequest
	case verrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"elapsed", time.Since(start))
		return nil
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":    ServiceName,
		"ok":         true,
		"time_utc":   time.Now().UTC().Format(time.RFC3339),
		"endpoints":  []string{"/health", "/stats", "/ingest", "/ingest_message", "/retrieve", "/reset"},
		"api_schema": 1,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"time_utc":  time.Now().UTC().Format(time.RFC3339),
		"vec_count": s.vecs.Count(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"vec_count": s.vecs.Count(),
	})
}

// handleReset clears the in-memory graph and rebuilds it from the
// vector store, so retrieval stays consistent with persisted state.
// Persistent files are never touched.
func (s *Server) handleReset(c echo.Context) error {
	if err := s.index.Rebuild(); err != nil {
		s.logger.Error("reset rebuild failed", "error", err)
		return verrors.New(verrors.ErrCodeInternal, "reset failed", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset_ok"})
}
