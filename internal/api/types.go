package api

import (
	"time"

	"github.com/bekaIva/instant-ai-translator/internal/menu"
	"github.com/bekaIva/instant-ai-translator/internal/present"
)

// ProcessRequest is the JSON body for POST /v1/process
type ProcessRequest struct {
	Text      string `json:"text"`
	Operation string `json:"operation"`
	// ReadOnly marks a source that cannot accept a replacement.
	ReadOnly bool `json:"read_only,omitempty"`
}

// ProcessResponse is returned by POST /v1/process for every terminal outcome.
type ProcessResponse struct {
	Result      string           `json:"result"`
	IsError     bool             `json:"is_error"`
	FailureKind string           `json:"failure_kind,omitempty"`
	Attempts    int              `json:"attempts"`
	Actions     []present.Action `json:"actions"`
}

// MenuResponse is returned by GET /v1/menu
type MenuResponse struct {
	Items []menu.MenuItemConfig `json:"items"`
	// Fallback is true when nothing is configured and the demo actions are served.
	Fallback bool `json:"fallback"`
}

// MenuUpdateRequest is the JSON body for PUT /v1/menu
type MenuUpdateRequest struct {
	Items []menu.MenuItemConfig `json:"items"`
}

// HistoryEntry is one row of GET /v1/history
type HistoryEntry struct {
	ID          string    `json:"id"`
	Operation   string    `json:"operation"`
	InputHash   string    `json:"input_hash"`
	InputLen    int       `json:"input_len"`
	Outcome     string    `json:"outcome"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	Attempts    int       `json:"attempts"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse is returned by GET /v1/history
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Backend       string `json:"backend"`
}
