// Package api exposes the localization pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/store"
)

const maxBodyBytes = 1 << 20

// Submitter runs a localization to completion.
type Submitter interface {
	Submit(ctx context.Context, in model.Input) (*model.Outcome, error)
}

// Reader is the read side of the store.
type Reader interface {
	GetRequest(ctx context.Context, id string) (*model.LocalizationRequest, error)
	GetOutcome(ctx context.Context, id string) (*model.Outcome, error)
	ListCandidates(ctx context.Context, id string) ([]model.MatchedParcel, error)
	ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.LocalizationRequest, error)
}

// Server holds the HTTP handlers.
type Server struct {
	submitter Submitter
	reader    Reader
	guard     *resilience.Guard
	origins   []string
}

// Option configures the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a Server. guard may be nil.
func NewServer(sub Submitter, rd Reader, guard *resilience.Guard, opts ...Option) *Server {
	s := &Server{submitter: sub, reader: rd, guard: guard, origins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1/localizations", func(r chi.Router) {
		r.Post("/", s.createLocalization)
		r.Get("/", s.listLocalizations)
		r.Get("/{id}", s.getLocalization)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	breakers := map[string]string{}
	if s.guard != nil {
		for name, st := range s.guard.States() {
			breakers[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "breakers": breakers})
}

func (s *Server) createLocalization(w http.ResponseWriter, r *http.Request) {
	var in model.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !in.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be address or parcel-scan")
		return
	}

	out, err := s.submitter.Submit(r.Context(), in)
	if err != nil {
		zap.L().Error("api: localization failed", zap.Error(err))
		if out == nil {
			writeError(w, http.StatusInternalServerError, "localization failed")
			return
		}
		writeJSON(w, http.StatusInternalServerError, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// localizationView is a stored request with its result.
type localizationView struct {
	Request    *model.LocalizationRequest `json:"request"`
	Outcome    *model.Outcome             `json:"outcome,omitempty"`
	Candidates []model.MatchedParcel      `json:"candidates"`
}

func (s *Server) getLocalization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	req, err := s.reader.GetRequest(ctx, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out, err := s.reader.GetOutcome(ctx, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	cands, err := s.reader.ListCandidates(ctx, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if cands == nil {
		cands = []model.MatchedParcel{}
	}
	writeJSON(w, http.StatusOK, localizationView{Request: req, Outcome: out, Candidates: cands})
}

func (s *Server) listLocalizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RequestFilter{Status: model.RequestStatus(q.Get("status"))}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	reqs, err := s.reader.ListRequests(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if reqs == nil {
		reqs = []model.LocalizationRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "localization not found")
		return
	}
	zap.L().Error("api: store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
