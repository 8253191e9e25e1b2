// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight-orchestrator/internal/common/config"
	stderrors "insight-orchestrator/internal/common/errors"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/models"
	"insight-orchestrator/internal/orchestrator"
)

// maxBodyBytes caps the request body size at ingress.
const maxBodyBytes = 64 * 1024

// Server is the thin HTTP surface over the orchestration service. Handlers
// validate, delegate and encode; no business logic lives here.
type Server struct {
	svc    *orchestrator.Service
	logger logger.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, svc *orchestrator.Service, log logger.Logger) *Server {
	s := &Server{
		svc: svc,
		logger: log.With(map[string]interface{}{
			"component": "api",
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/reports", s.handleReports)
	mux.HandleFunc("/v1/reports/", s.handleReport)
	mux.HandleFunc("/v1/metrics/cache", s.handleCacheMetrics)
	mux.HandleFunc("/v1/metrics/throughput", s.handleThroughput)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.http.Addr,
	})
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, stderrors.NewMalformedInputError("POST required"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.NewMalformedInputError("unreadable body"))
		return
	}
	if err := ValidateQueryBody(body); err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.AsStandardError(err))
		return
	}

	var req models.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.NewMalformedInputError(err.Error()))
		return
	}

	resp, err := s.svc.ProcessQuery(r.Context(), &req)
	if err != nil {
		stdErr := stderrors.AsStandardError(err)
		s.writeError(w, statusFor(stdErr), stdErr)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, stderrors.NewMalformedInputError("GET required"))
		return
	}
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		s.writeError(w, http.StatusBadRequest, stderrors.NewMalformedInputError("tenantId query parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": s.svc.RecentReports(tenantID, limit),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, stderrors.NewMalformedInputError("GET required"))
		return
	}
	reportID := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" || reportID == "" {
		s.writeError(w, http.StatusBadRequest, stderrors.NewMalformedInputError("tenantId and report id are required"))
		return
	}

	report, ok := s.svc.GetReport(tenantID, reportID)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "report not found",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCacheMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.CacheMetrics(r.Context()))
}

func (s *Server) handleThroughput(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Throughput())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, stdErr *stderrors.StandardError) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": stdErr,
	})
}

// statusFor maps error categories to HTTP statuses.
func statusFor(stdErr *stderrors.StandardError) int {
	switch stderrors.GetErrorCategory(stdErr.Code) {
	case "QUERY", "DATA_QUALITY":
		return http.StatusBadRequest
	case "AUTHORIZATION":
		return http.StatusForbidden
	case "PROCESSING":
		if stdErr.Code == stderrors.ErrCodeTimeoutExceeded {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
