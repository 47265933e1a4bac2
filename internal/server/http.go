// Package server exposes the gatekeepd evaluation and configuration
// lifecycle API over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gatekeep/gatekeep"
	"github.com/gatekeep/gatekeep/internal/metrics"
	"github.com/gatekeep/gatekeep/internal/service"
	"github.com/gatekeep/gatekeep/wire"
)

const defaultMaxJSONBodySize = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

// HTTPServer serves the v1 API.
type HTTPServer struct {
	service         Service
	maxJSONBodySize int64
	metrics         *metrics.Metrics
}

// Option configures the HTTP handler.
type Option func(*HTTPServer)

// WithMaxJSONBodySize caps JSON request bodies in bytes.
func WithMaxJSONBodySize(n int64) Option {
	return func(s *HTTPServer) {
		if n > 0 {
			s.maxJSONBodySize = n
		}
	}
}

// WithMetrics records per-request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *HTTPServer) {
		s.metrics = m
	}
}

type evaluateJSONRequest struct {
	Property string                  `json:"property,omitempty"`
	Context  wire.ContextJSON        `json:"context,omitempty"`
	Requests []evaluateJSONBatchItem `json:"requests,omitempty"`
}

type evaluateJSONBatchItem struct {
	Property string           `json:"property"`
	Context  wire.ContextJSON `json:"context"`
}

type evaluateJSONResponse struct {
	Results []service.EvaluateResult `json:"results"`
}

type snapshotJSONResponse struct {
	Namespace string `json:"namespace"`
	Flags     int    `json:"flags"`
}

type rollbackJSONRequest struct {
	Steps int `json:"steps"`
}

type rollbackJSONResponse struct {
	RolledBack bool `json:"rolled_back"`
}

// NewHTTPHandler builds the API handler for the given service.
func NewHTTPHandler(svc Service, opts ...Option) http.Handler {
	if svc == nil {
		panic("service is nil")
	}

	server := &HTTPServer{
		service:         svc,
		maxJSONBodySize: defaultMaxJSONBodySize,
	}
	for _, opt := range opts {
		opt(server)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/namespaces/{namespace}/evaluate", server.handleEvaluate)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/explain", server.handleExplain)
	mux.HandleFunc("PUT /v1/namespaces/{namespace}/snapshot", server.handleLoadSnapshot)
	mux.HandleFunc("PATCH /v1/namespaces/{namespace}/snapshot", server.handleApplyPatch)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/snapshot", server.handleExportSnapshot)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/rollback", server.handleRollback)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/disable", server.handleDisable)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/enable", server.handleEnable)
	mux.HandleFunc("GET /healthz", server.handleHealthz)
	if server.metrics != nil {
		mux.Handle("GET /metrics", server.metrics.Handler())
	}

	return server.withMetrics(mux)
}

func (s *HTTPServer) withMetrics(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Method, route, wrapped.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *HTTPServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	var request evaluateJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	var requests []service.EvaluateRequest
	switch {
	case len(request.Requests) > 0 && strings.TrimSpace(request.Property) != "":
		writeJSONError(w, http.StatusBadRequest, "use either property or requests")
		return
	case len(request.Requests) > 0:
		requests = make([]service.EvaluateRequest, 0, len(request.Requests))
		for idx, item := range request.Requests {
			if strings.TrimSpace(item.Property) == "" {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("requests[%d].property is required", idx))
				return
			}
			requests = append(requests, service.EvaluateRequest{
				Property: item.Property,
				Context:  item.Context,
			})
		}
	case strings.TrimSpace(request.Property) != "":
		requests = []service.EvaluateRequest{{
			Property: request.Property,
			Context:  request.Context,
		}}
	default:
		writeJSONError(w, http.StatusBadRequest, "property or requests is required")
		return
	}

	results, err := s.service.EvaluateBatch(namespace, requests)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateJSONResponse{Results: results})
}

func (s *HTTPServer) handleExplain(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	var request evaluateJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if len(request.Requests) > 0 {
		writeJSONError(w, http.StatusBadRequest, "explain takes a single property, not requests")
		return
	}
	if strings.TrimSpace(request.Property) == "" {
		writeJSONError(w, http.StatusBadRequest, "property is required")
		return
	}

	result, err := s.service.Explain(namespace, service.EvaluateRequest{
		Property: request.Property,
		Context:  request.Context,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	count, err := s.service.LoadSnapshot(namespace, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotJSONResponse{Namespace: namespace, Flags: count})
}

func (s *HTTPServer) handleApplyPatch(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	count, err := s.service.ApplyPatch(namespace, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotJSONResponse{Namespace: namespace, Flags: count})
}

func (s *HTTPServer) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	data, err := s.service.ExportSnapshot(namespace)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}

	var request rollbackJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if request.Steps < 1 {
		writeJSONError(w, http.StatusBadRequest, "steps must be >= 1")
		return
	}

	// Underflow is not an error: the caller branches on rolled_back.
	writeJSON(w, http.StatusOK, rollbackJSONResponse{
		RolledBack: s.service.Rollback(namespace, request.Steps),
	})
}

func (s *HTTPServer) handleDisable(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}
	s.service.DisableAll(namespace)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleEnable(w http.ResponseWriter, r *http.Request) {
	namespace, ok := requireNamespace(w, r)
	if !ok {
		return
	}
	s.service.EnableAll(namespace)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireNamespace(w http.ResponseWriter, r *http.Request) (string, bool) {
	namespace := strings.TrimSpace(r.PathValue("namespace"))
	if namespace == "" {
		writeJSONError(w, http.StatusBadRequest, "namespace is required")
		return "", false
	}
	return namespace, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wire.ErrInvalidSnapshot),
		errors.Is(err, wire.ErrInvalidPatch),
		errors.Is(err, wire.ErrInvalidContext):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gatekeep.ErrFeatureNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, io.EOF
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxJSONBodySize))
	if err != nil {
		return nil, normalizeJSONDecodeError(err)
	}
	if len(body) == 0 {
		return nil, io.EOF
	}
	return body, nil
}

func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return normalizeJSONDecodeError(err)
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}
