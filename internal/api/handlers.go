package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bekaIva/instant-ai-translator/internal/log"
	"github.com/bekaIva/instant-ai-translator/internal/menu"
	"github.com/bekaIva/instant-ai-translator/internal/prefs"
	"github.com/bekaIva/instant-ai-translator/internal/present"
)

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Backend:       s.processor.State().String(),
	})
}

// handleGetMenu handles GET /v1/menu
// Returns the enabled items in display order, or the fallback actions.
func (s *Server) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	items, fallback := menu.Resolve(menu.GetEnabledConfigs(r.Context(), s.prefs))
	respondJSON(w, http.StatusOK, MenuResponse{Items: items, Fallback: fallback})
}

// handlePutMenu handles PUT /v1/menu
// Replaces the whole configured list, disabled items included.
func (s *Server) handlePutMenu(w http.ResponseWriter, r *http.Request) {
	var req MenuUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, prefs.DefaultMaxValueBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := menu.Validate(req.Items); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range req.Items {
		if req.Items[i].Icon == "" {
			req.Items[i].Icon = menu.DefaultIcon
		}
	}

	blob, err := menu.EncodeConfigs(req.Items)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode menu")
		return
	}
	if err := s.prefs.SetString(r.Context(), prefs.MenuConfigKey, blob); err != nil {
		s.logger.Error("failed to store menu", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store menu")
		return
	}

	items, fallback := menu.Resolve(menu.EnabledSorted(req.Items))
	respondJSON(w, http.StatusOK, MenuResponse{Items: items, Fallback: fallback})
}

// handleProcess handles POST /v1/process
// Every terminal outcome, failures included, is a 200 with the presented result.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxTextBytes+1024)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "text too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := present.CheckSelection(req.Text); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Operation == "" {
		s.writeError(w, http.StatusBadRequest, "operation is required")
		return
	}
	if int64(len(req.Text)) > s.config.MaxTextBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "text too large")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.ProcessTimeout)
	defer cancel()

	outcome, err := s.processor.ProcessSync(ctx, req.Text, req.Operation)
	if err != nil {
		reqLogger := log.WithOperation(req.Operation).With("request_id", middleware.GetReqID(r.Context()))
		if errors.Is(err, context.DeadlineExceeded) {
			reqLogger.Warn("processing timed out", "timeout", s.config.ProcessTimeout)
			s.writeError(w, http.StatusGatewayTimeout, "processing timed out")
			return
		}
		// Client went away.
		reqLogger.Debug("process request abandoned", "error", err)
		return
	}

	res := present.Resolve(outcome, req.Text, req.ReadOnly)
	resp := ProcessResponse{
		Result:   res.Text,
		IsError:  res.IsError,
		Attempts: outcome.Attempts,
		Actions:  res.Actions,
	}
	if !outcome.OK() {
		resp.FailureKind = outcome.Failure.Kind.String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /v1/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	resp := HistoryResponse{Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:          e.ID,
			Operation:   e.Operation,
			InputHash:   e.InputHash,
			InputLen:    e.InputLen,
			Outcome:     string(e.Outcome),
			FailureKind: e.FailureKind,
			Message:     e.Message,
			Attempts:    e.Attempts,
			DurationMS:  e.Duration.Milliseconds(),
			CreatedAt:   e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /v1/openapi.json
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	items, _ := menu.Resolve(menu.GetEnabledConfigs(r.Context(), s.prefs))
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(items))
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
