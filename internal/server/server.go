// Package server exposes the HTTP trigger surface: session flush, semantic
// search, experience search, block insertion and tool management.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/agent"
)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	defaultSearchLimit       = 10
	maxSearchLimit           = 50
	defaultAgenticIterations = 16
	maxThreshold             = 2.0
)

// Flusher runs the flush pipeline for one session.
type Flusher interface {
	FlushSession(ctx context.Context, projectID, sessionID string) error
}

// Server is the HTTP edge over the core.
type Server struct {
	store      acontext.Store
	indexer    *acontext.Indexer
	searcher   *acontext.Searcher
	experience *agent.ExperienceSearcher
	flusher    Flusher
	logger     *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the HTTP edge.
func New(store acontext.Store, indexer *acontext.Indexer, searcher *acontext.Searcher, experience *agent.ExperienceSearcher, flusher Flusher, opts ...Option) *Server {
	s := &Server{
		store:      store,
		indexer:    indexer,
		searcher:   searcher,
		experience: experience,
		flusher:    flusher,
		logger:     nopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/project/{projectID}", func(r chi.Router) {
		r.Post("/session/{sessionID}/flush", s.handleFlush)
		r.Get("/session/{sessionID}/get_learning_status", s.handleLearningStatus)

		r.Route("/space/{spaceID}", func(r chi.Router) {
			r.Get("/semantic_glob", s.handleSemanticGlob)
			r.Get("/semantic_grep", s.handleSemanticGrep)
			r.Get("/experience_search", s.handleExperienceSearch)
			r.Post("/insert_block", s.handleInsertBlock)
		})

		r.Post("/tool/rename", s.handleToolRename)
		r.Get("/tool/name", s.handleToolNames)
	})
	return r
}

// Flag is the generic status response body.
type Flag struct {
	Status string `json:"status"`
	Errmsg string `json:"errmsg,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch acontext.KindOf(err) {
	case acontext.KindBadRequest, acontext.KindValidation:
		return http.StatusBadRequest
	case acontext.KindNotFound:
		return http.StatusNotFound
	case acontext.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), Flag{Status: "failed", Errmsg: err.Error()})
}
