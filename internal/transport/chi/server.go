// Package chi serves the meilisync admin API: index listing, stats,
// bulk sync and clear, plus health and Prometheus metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync"
	logpkg "github.com/kailas-cloud/meilisync/internal/logger"
	"github.com/kailas-cloud/meilisync/internal/metrics"
	healthuc "github.com/kailas-cloud/meilisync/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeIndexNotFound = "index_not_found"
	CodeInvalidConfig = "invalid_configuration"
	CodeTaskFailed    = "remote_task_failed"
	CodeEngineError   = "engine_error"
	CodeInternalError = "internal_error"
)

// Registry resolves registered indexes. *meilisync.Client implements it.
type Registry interface {
	Lookup(name string) (meilisync.Handle, error)
	Indexes() []meilisync.Handle
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IndexResponse describes one registered index.
type IndexResponse struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	PrimaryKey        string   `json:"primary_key"`
	SearchableFields  []string `json:"searchable_fields"`
	FilterableFields  []string `json:"filterable_fields"`
	SortableFields    []string `json:"sortable_fields"`
	SupportsGeo       bool     `json:"supports_geo"`
	IncludePKInSearch bool     `json:"include_pk_in_search"`
}

// StatsResponse is the body of GET /indexes/{name}/stats.
type StatsResponse struct {
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
}

// SyncRequest is the optional body of POST /indexes/{name}/sync.
type SyncRequest struct {
	BatchSize int  `json:"batch_size"`
	Resume    bool `json:"resume"`
}

// errorHandler tries to handle a library error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the admin API handlers.
type Server struct {
	registry      Registry
	checkpoint    meilisync.Checkpoint
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an admin API server. checkpoint can be nil.
func NewServer(
	registry Registry,
	checkpoint meilisync.Checkpoint,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:   registry,
		checkpoint: checkpoint,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(meilisync.ErrNotFound, http.StatusNotFound, CodeIndexNotFound),
		sentinelHandler(meilisync.ErrConfiguration, http.StatusConflict, CodeInvalidConfig),
		sentinelHandler(meilisync.ErrRemoteTask, http.StatusBadGateway, CodeTaskFailed),
		apiErrorHandler,
	}
	return s
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ListIndexes handles GET /indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, _ *http.Request) {
	handles := s.registry.Indexes()
	items := make([]IndexResponse, len(handles))
	for i, h := range handles {
		items[i] = indexToResponse(h)
	}
	writeJSON(w, http.StatusOK, items)
}

// IndexStats handles GET /indexes/{name}/stats.
func (s *Server) IndexStats(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	n, err := h.Count(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Name: h.Name(), Documents: n})
}

// SyncIndex handles POST /indexes/{name}/sync. The body is optional.
func (s *Server) SyncIndex(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.BatchSize < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "batch_size must not be negative")
		return
	}
	if req.Resume && s.checkpoint == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "resume requires a checkpoint store")
		return
	}

	h, ok := s.lookup(w, r)
	if !ok {
		return
	}

	start := time.Now()
	rep, err := h.Sync(r.Context(), meilisync.SyncOptions{
		BatchSize:  req.BatchSize,
		Checkpoint: s.checkpoint,
		Resume:     req.Resume,
	})
	metrics.RecordSync(h.Name(), rep.Documents, rep.Skipped, time.Since(start), err)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.log(r).Info("index synced",
		zap.String("index", rep.Index),
		zap.Int("documents", rep.Documents),
		zap.Int("skipped", rep.Skipped),
		zap.Int("batches", rep.Batches),
		zap.Int("resumed_from", rep.ResumedFrom),
	)
	writeJSON(w, http.StatusOK, rep)
}

// ClearIndex handles DELETE /indexes/{name}/documents.
func (s *Server) ClearIndex(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := h.Clear(r.Context()); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.log(r).Info("index cleared", zap.String("index", h.Name()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (meilisync.Handle, bool) {
	h, err := s.registry.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		s.handleError(w, r, err)
		return nil, false
	}
	return h, true
}

func indexToResponse(h meilisync.Handle) IndexResponse {
	m := h.Meta()
	return IndexResponse{
		Name:              m.IndexName,
		Type:              m.TypeName,
		PrimaryKey:        m.PrimaryKey,
		SearchableFields:  m.SearchableFields,
		FilterableFields:  m.FilterableFields,
		SortableFields:    m.SortableFields,
		SupportsGeo:       m.SupportsGeo,
		IncludePKInSearch: m.IncludePKInSearch,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

// apiErrorHandler reports engine rejections without echoing the engine link.
func apiErrorHandler(w http.ResponseWriter, err error) bool {
	var apiErr *meilisync.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	writeError(w, http.StatusBadGateway, CodeEngineError, apiErr.Code+": "+apiErr.Message)
	return true
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log(r)
	if errors.Is(err, context.Canceled) {
		log.Info("request canceled", zap.Error(err))
		return
	}
	log.Warn("admin request failed", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
