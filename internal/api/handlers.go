package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/walletscope/backend/internal/cluster"
	"github.com/walletscope/backend/internal/config"
	"github.com/walletscope/backend/internal/job"
	"github.com/walletscope/backend/internal/ws"
)

var startTime = time.Now()

type Handlers struct {
	cfg *config.Config
	mgr *job.Manager
	hub *ws.Hub
}

func NewHandlers(cfg *config.Config, mgr *job.Manager, hub *ws.Hub) *Handlers {
	return &Handlers{cfg: cfg, mgr: mgr, hub: hub}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	pending, processing, completed, failed := h.mgr.Stats()
	observers := 0
	if h.hub != nil {
		observers = h.hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs": map[string]int{
			"pending":    pending,
			"processing": processing,
			"completed":  completed,
			"failed":     failed,
		},
		"observers": map[string]int{
			"connected": observers,
		},
		"limits": map[string]int{
			"max_batch_size": h.cfg.MaxBatchSize,
		},
	})
}

type BatchRequest struct {
	Items []string `json:"items"`
}

type BatchResponse struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	Total            int    `json:"total"`
	SubscribeChannel string `json:"subscribe_channel"`
	StatusURL        string `json:"status_url"`
}

func (h *Handlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	for _, item := range req.Items {
		if strings.TrimSpace(item) == "" {
			writeError(w, http.StatusUnprocessableEntity, "invalid_item", "items must be non-empty strings")
			return
		}
	}

	j, err := h.mgr.Create(req.Items)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrEmptyBatch):
			writeError(w, http.StatusBadRequest, "empty_batch", "items must not be empty")
		case errors.Is(err, job.ErrBatchTooLarge):
			writeError(w, http.StatusBadRequest, "batch_too_large", err.Error())
		case errors.Is(err, job.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
		default:
			writeError(w, http.StatusInternalServerError, "internal", "failed to create job")
		}
		return
	}

	writeJSON(w, http.StatusCreated, BatchResponse{
		JobID:            j.ID,
		Status:           string(j.Status),
		Total:            j.Total,
		SubscribeChannel: j.Channel(),
		StatusURL:        "/api/batches/" + j.ID,
	})
}

type BatchStatusResponse struct {
	JobID         string                    `json:"job_id"`
	Status        string                    `json:"status"`
	Progress      int                       `json:"progress"`
	Total         int                       `json:"total"`
	CreatedAt     time.Time                 `json:"created_at"`
	StartedAt     *time.Time                `json:"started_at,omitempty"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
	Results       map[string]cluster.Result `json:"results,omitempty"`
	Errors        []job.ItemError           `json:"errors,omitempty"`
	FailureReason string                    `json:"failure_reason,omitempty"`
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.mgr.Get(id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, BatchStatusResponse{
		JobID:         j.ID,
		Status:        string(j.Status),
		Progress:      j.Progress,
		Total:         j.Total,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		Results:       j.Results,
		Errors:        j.Errors,
		FailureReason: j.FailureReason,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
