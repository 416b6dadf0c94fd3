package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxUpdateBytes bounds a webhook body. Telegram updates are far smaller.
const maxUpdateBytes = 1 << 20

// WebhookHandler accepts Telegram updates and queues them.
type WebhookHandler struct {
	publisher jobs.Publisher
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(publisher jobs.Publisher) *WebhookHandler {
	return &WebhookHandler{publisher: publisher}
}

// Receive handles POST /telegram/webhook. Telegram re-delivers any update
// not answered with 2xx, so a queue failure returns 503.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("Invalid webhook body")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid update")
		return
	}

	if update.Message == nil {
		log.Debug().Int("update_id", update.UpdateID).Msg("Skipping update without message")
		middleware.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	job := jobs.NewMessageJob(update)
	// Processing outlives the request.
	if err := h.publisher.PublishMessage(context.WithoutCancel(ctx), job); err != nil {
		log.Error().Err(err).Int("update_id", update.UpdateID).Msg("Failed to enqueue update")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue update")
		return
	}

	log.Info().Str("job_id", job.JobID).Int("update_id", update.UpdateID).Msg("Update enqueued")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"job_id": job.JobID,
	})
}

// SummaryReader builds the expense summary.
type SummaryReader interface {
	Summary(ctx context.Context) (*pipeline.SummaryResult, error)
	Currency() string
}

// SummaryHandler serves the summary as JSON.
type SummaryHandler struct {
	reader SummaryReader
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(reader SummaryReader) *SummaryHandler {
	return &SummaryHandler{reader: reader}
}

type summaryResponse struct {
	Currency    string            `json:"currency"`
	Count       int               `json:"count"`
	Total       string            `json:"total"`
	Average     string            `json:"average"`
	TopCategory string            `json:"top_category,omitempty"`
	TopAmount   string            `json:"top_amount,omitempty"`
	ByCategory  map[string]string `json:"by_category"`
	DownloadURL string            `json:"download_url,omitempty"`
}

// GetSummary handles GET /api/summary
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sum, err := h.reader.Summary(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to build summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build summary")
		return
	}

	report := sum.Report
	resp := summaryResponse{
		Currency:    h.reader.Currency(),
		Count:       report.Count,
		Total:       report.Total.StringFixed(2),
		Average:     report.Average.StringFixed(2),
		ByCategory:  make(map[string]string, len(expense.Categories())),
		DownloadURL: sum.Location.URL,
	}
	for _, c := range expense.Categories() {
		amount, ok := report.ByCategory[c]
		if !ok {
			resp.ByCategory[string(c)] = "0.00"
			continue
		}
		resp.ByCategory[string(c)] = amount.StringFixed(2)
	}
	if !report.Empty {
		resp.TopCategory = string(report.Top)
		resp.TopAmount = report.TopAmount.StringFixed(2)
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if chatStr := query.Get("chat_id"); chatStr != "" {
		chatID, err := strconv.ParseInt(chatStr, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "chat_id must be a number")
			return
		}
		filter.ChatID = chatID
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
