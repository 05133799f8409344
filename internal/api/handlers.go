package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/photocal/photocal-server/internal/config"
	"github.com/photocal/photocal-server/internal/db"
	"github.com/photocal/photocal-server/internal/models"
	"github.com/photocal/photocal-server/internal/ocr"
	"github.com/photocal/photocal-server/internal/pipeline"
	"github.com/photocal/photocal-server/internal/strategy"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

// SyncRunner runs one calendar sync for a user.
type SyncRunner interface {
	Sync(ctx context.Context, userID string) (*models.SyncResult, error)
}

type Handlers struct {
	cfg      *config.Config
	db       *db.DB
	pipe     *pipeline.Orchestrator
	selector *strategy.Selector
	sync     SyncRunner // nil until a remote calendar is configured
	ocr      ocr.Provider
}

func NewHandlers(cfg *config.Config, database *db.DB, pipe *pipeline.Orchestrator, selector *strategy.Selector, sync SyncRunner, ocrProvider ocr.Provider) *Handlers {
	return &Handlers{
		cfg:      cfg,
		db:       database,
		pipe:     pipe,
		selector: selector,
		sync:     sync,
		ocr:      ocrProvider,
	}
}

// HealthResponse reports component health for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	AI       string `json:"ai"`
	Sync     string `json:"sync"`
	Version  string `json:"version"`
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: h.checkDB(),
		AI:       h.checkAI(),
		Sync:     h.checkSync(),
		Version:  "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkDB() string {
	if h.db == nil {
		return "not configured"
	}
	if err := h.db.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkAI() string {
	if h.pipe == nil || !h.pipe.AIConfigured() {
		return "not configured"
	}
	return "configured"
}

func (h *Handlers) checkSync() string {
	if h.sync == nil {
		return "not configured"
	}
	return "configured"
}

// ExtractRequest carries OCR text, or an image when the client could
// not recognize text itself.
type ExtractRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// Extract handles POST /api/v1/extract
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	text := req.Text
	if text == "" && req.ImageBase64 != "" {
		recognized, ok := h.recognizeImage(w, r.Context(), req.ImageBase64)
		if !ok {
			return
		}
		text = recognized
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "text or image_base64 is required", "MISSING_TEXT")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	result, err := h.pipe.ParseEvents(ctx, text)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "extraction failed", "EXTRACTION_FAILED")
		return
	}

	user := GetUser(r)
	if err := h.db.LogExtraction(ctx, user, result.Strategy, string(result.Model), result.Usage, len(result.Events), result.FromCache); err != nil {
		log.Printf("logging extraction for %s: %v", user, err)
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) recognizeImage(w http.ResponseWriter, ctx context.Context, imageBase64 string) (string, bool) {
	if h.ocr == nil {
		writeError(w, http.StatusBadRequest, "image recognition is not configured, send text instead", "OCR_UNAVAILABLE")
		return "", false
	}
	image, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image_base64 is not valid base64", "INVALID_IMAGE")
		return "", false
	}
	text, err := h.ocr.Recognize(ctx, image)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "image recognition failed", "OCR_FAILED")
		return "", false
	}
	return text, true
}

// BatchRequest is the body for POST /api/v1/extract/batch
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// BatchResponse wraps the per-item results
type BatchResponse struct {
	Items []pipeline.BatchItem `json:"items"`
}

// ExtractBatch handles POST /api/v1/extract/batch
func (h *Handlers) ExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "texts is required", "MISSING_TEXTS")
		return
	}
	if len(req.Texts) > h.cfg.BatchLimit {
		writeError(w, http.StatusBadRequest, "too many texts in one batch", "BATCH_TOO_LARGE")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	items := h.pipe.ParseBatch(ctx, req.Texts, pipeline.DefaultBatchConcurrency)

	user := GetUser(r)
	for _, item := range items {
		if item.Result == nil {
			continue
		}
		if err := h.db.LogExtraction(ctx, user, item.Result.Strategy, string(item.Result.Model), item.Result.Usage, len(item.Result.Events), item.Result.FromCache); err != nil {
			log.Printf("logging extraction for %s: %v", user, err)
		}
	}

	writeJSON(w, http.StatusOK, BatchResponse{Items: items})
}

// CreateEventRequest is the body for POST /api/v1/events
type CreateEventRequest struct {
	Event models.CandidateEvent `json:"event"`
}

// CreateEvent handles POST /api/v1/events: the client confirms one of
// the extracted candidates and it becomes a stored calendar event.
func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if req.Event.Title == "" {
		writeError(w, http.StatusBadRequest, "event title is required", "MISSING_TITLE")
		return
	}

	id, err := h.db.SaveCandidate(r.Context(), GetUser(r), req.Event)
	if err == db.ErrNoStartDate {
		writeError(w, http.StatusBadRequest, "event has no start date", "MISSING_START_DATE")
		return
	}
	if err != nil {
		log.Printf("saving event: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save event", "SAVE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListEvents handles GET /api/v1/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.db.ListActiveEvents(r.Context(), GetUser(r))
	if err != nil {
		log.Printf("listing events: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list events", "LIST_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GetEvent handles GET /api/v1/events/{id}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event, err := h.db.GetEvent(r.Context(), GetUser(r), id)
	if err != nil {
		log.Printf("getting event %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load event", "GET_FAILED")
		return
	}
	if event == nil || event.Deleted {
		writeError(w, http.StatusNotFound, "event not found", "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/v1/events/{id}. Events are
// soft-deleted so the next sync run can propagate the deletion.
func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.db.SoftDeleteEvent(r.Context(), GetUser(r), id)
	if err != nil {
		log.Printf("deleting event %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not delete event", "DELETE_FAILED")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "event not found", "NOT_FOUND")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/v1/sync
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "no remote calendar configured", "SYNC_UNAVAILABLE")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	result, err := h.sync.Sync(ctx, GetUser(r))
	if err != nil {
		log.Printf("sync failed for %s: %v", GetUser(r), err)
		writeError(w, http.StatusBadGateway, "sync failed: "+err.Error(), "SYNC_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UsageResponse combines live counters with persisted history
type UsageResponse struct {
	Current       strategy.UsageSnapshot `json:"current"`
	MonthlyBudget float64                `json:"monthly_budget"`
	Month         *db.ExtractionStats    `json:"month"`
}

// Usage handles GET /api/v1/usage
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats, err := h.db.GetExtractionStats(r.Context(), GetUser(r), monthStart)
	if err != nil {
		log.Printf("loading extraction stats: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load usage", "USAGE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Current:       h.selector.Tracker().Snapshot(),
		MonthlyBudget: h.cfg.MonthlyBudget,
		Month:         stats,
	})
}
