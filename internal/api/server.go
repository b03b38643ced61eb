package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Grigsan/booksparser-telegram-bot/internal/catalog"
	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/observability"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

const (
	defaultProductsLimit = 100
	defaultSearchLimit   = 50
	maxJobs              = 50
)

// Runner executes an extraction run. *engine.Engine satisfies it.
type Runner interface {
	RunExtraction(ctx context.Context, sources []types.SourceSpec, globalCap int) []types.ProductRecord
}

// Job tracks one parse request.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Sources     []string   `json:"sources"`
	GlobalCap   int        `json:"global_cap"`
	Parsed      int        `json:"parsed_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Server provides the HTTP API over the extraction engine and the catalog.
type Server struct {
	cfg     *config.Config
	router  chi.Router
	runner  Runner
	store   storage.Storage
	catalog *catalog.Service
	metrics *observability.Metrics
	logger  *slog.Logger

	parsing atomic.Bool

	// Job tracking
	jobs     map[string]*Job
	jobOrder []string
	jobsMu   sync.RWMutex
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, runner Runner, store storage.Storage, cat *catalog.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		store:   store,
		catalog: cat,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
		jobs:    make(map[string]*Job),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Post("/parse", s.handleParse)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)

	r.Get("/products", s.handleProducts)
	r.Get("/search", s.handleSearch)
	r.Get("/stats", s.handleStats)
	r.Get("/categories", s.handleCategories)

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			s.metrics.APIRequests.Add(1)
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "booksparser",
		"version": config.Version,
		"parsing": s.parsing.Load(),
	})
}

type parseRequest struct {
	Force     bool     `json:"force"`
	GlobalCap int      `json:"global_cap"`
	Sources   []string `json:"sources"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var body parseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !body.Force {
		stats, err := s.catalog.Stats(r.Context())
		if err != nil {
			s.logger.Error("reading catalog stats failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		if stats.Total > 0 {
			s.jsonResponse(w, http.StatusOK, map[string]any{
				"message":        "records already loaded, pass force=true to parse again",
				"total_products": stats.Total,
				"status":         "skipped",
			})
			return
		}
	}

	sources, err := s.cfg.ResolvedSources(body.Sources...)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	globalCap := body.GlobalCap
	if globalCap == 0 {
		globalCap = s.cfg.Engine.GlobalCap
	}
	if globalCap < 1 {
		s.errorResponse(w, http.StatusBadRequest, "global_cap must be >= 1")
		return
	}

	if !s.parsing.CompareAndSwap(false, true) {
		s.errorResponse(w, http.StatusConflict, "a parse is already running")
		return
	}
	defer s.parsing.Store(false)

	job := s.newJob(sources, globalCap)

	ctx := r.Context()
	if s.cfg.Server.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ParseTimeout)
		defer cancel()
	}

	records := s.runner.RunExtraction(ctx, sources, globalCap)

	// Records are stored even when the client has gone away.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Minute)
	defer cancel()
	if err := s.store.Store(storeCtx, records); err != nil {
		s.finishJob(job, len(records), err)
		if s.metrics != nil {
			s.metrics.StoreErrors.Add(1)
		}
		s.logger.Error("storing parsed records failed", "job_id", job.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsStored.Add(int64(len(records)))
	}
	s.finishJob(job, len(records), nil)

	total := len(records)
	if stats, err := s.catalog.Stats(storeCtx); err == nil {
		total = stats.Total
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"message":        "parse finished",
		"job_id":         job.ID,
		"parsed_count":   len(records),
		"total_products": total,
		"status":         "success",
	})
}

func (s *Server) newJob(sources []types.SourceSpec, globalCap int) *Job {
	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.DisplayName
	}
	job := &Job{
		ID:        uuid.NewString(),
		Status:    "running",
		Sources:   names,
		GlobalCap: globalCap,
		StartedAt: time.Now(),
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	if len(s.jobOrder) > maxJobs {
		delete(s.jobs, s.jobOrder[0])
		s.jobOrder = s.jobOrder[1:]
	}
	return job
}

func (s *Server) finishJob(job *Job, parsed int, err error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	now := time.Now()
	job.CompletedAt = &now
	job.Parsed = parsed
	job.Status = "completed"
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]Job, 0, len(s.jobOrder))
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		jobs = append(jobs, *s.jobs[s.jobOrder[i]])
	}
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	s.jobsMu.RUnlock()

	if !ok {
		s.errorResponse(w, http.StatusNotFound, "job not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, snapshot)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r, defaultProductsLimit)
	if !ok {
		return
	}
	records, err := s.catalog.Records(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing products failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"products": records,
		"count":    len(records),
		"status":   "success",
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if query == "" && category == "" {
		s.errorResponse(w, http.StatusBadRequest, "a search query or a category is required")
		return
	}
	limit, ok := s.limitParam(w, r, defaultSearchLimit)
	if !ok {
		return
	}

	records, err := s.catalog.Search(r.Context(), query, category, limit)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"products": records,
		"count":    len(records),
		"query":    query,
		"category": category,
		"status":   "success",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.logger.Error("reading stats failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"status": "success",
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.logger.Error("listing categories failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	names := make([]string, len(counts))
	for i, c := range counts {
		names[i] = c.Category
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"categories": names,
		"counts":     counts,
		"count":      len(names),
		"status":     "success",
	})
}

func (s *Server) limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg, "status": "error"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.logger.Warn("encoding response failed", "error", err)
	}
}
