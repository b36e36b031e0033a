package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/fetcher"
	"github.com/gridskin/gridskin/internal/models"
)

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query))
	candidates, err := s.pipeline.Search(r.Context(), req.Query)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":      req.Query,
		"candidates": candidates,
		"total":      len(candidates),
	})
}

type composeRequest struct {
	Query       string `json:"query"`
	CandidateID int64  `json:"candidate_id,omitempty"`
	ConsoleID   string `json:"console_id"`
}

func (s *Server) handleComposeIcon(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || req.ConsoleID == "" {
		s.respondError(w, http.StatusBadRequest, "query and console_id are required")
		return
	}
	s.logger.Debug("compose request",
		zap.String("query", req.Query),
		zap.Int64("candidate_id", req.CandidateID),
		zap.String("console_id", req.ConsoleID))
	result, err := s.pipeline.ComposeIcon(r.Context(), req.Query, req.CandidateID, req.ConsoleID)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleConsoles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"consoles": s.registry.Consoles(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	imageCount, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count images failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"cached_images": imageCount,
		"consoles":      len(s.registry.Consoles()),
		"state":         s.pipeline.State(),
	}
	diskBytes, err := fetcher.DiskUsageBytes(
		s.config.Storage.CacheDir,
		s.config.Storage.OutputDir,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondPipelineError maps error kinds onto HTTP statuses so API callers
// can distinguish bad input from upstream trouble.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.ErrNotFound, models.ErrUnknownConsole:
		status = http.StatusNotFound
	case models.ErrAuthInvalid:
		status = http.StatusUnauthorized
	case models.ErrRateLimited:
		status = http.StatusTooManyRequests
	case models.ErrTimeout:
		status = http.StatusGatewayTimeout
	}
	s.logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	s.respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
