// Package api exposes the Telegram webhook and a small read-only JSON API.
package api

import (
	"net/http"

	"github.com/dvloznov/expense-bot/internal/api/handlers"
	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Publisher     jobs.Publisher
	Jobs          jobs.JobStore
	Summary       handlers.SummaryReader
	WebhookSecret string
	APIToken      string
	Log           zerolog.Logger
}

// NewRouter builds the HTTP handler with the middleware chain applied.
func NewRouter(deps Deps) http.Handler {
	webhook := handlers.NewWebhookHandler(deps.Publisher)
	summary := handlers.NewSummaryHandler(deps.Summary)
	jobsHandler := handlers.NewJobsHandler(deps.Jobs)

	mux := http.NewServeMux()
	mux.Handle("POST /telegram/webhook", middleware.WebhookAuth(deps.WebhookSecret)(http.HandlerFunc(webhook.Receive)))

	apiAuth := middleware.BearerAuth(deps.APIToken)
	mux.Handle("GET /api/summary", apiAuth(http.HandlerFunc(summary.GetSummary)))
	mux.Handle("GET /api/jobs", apiAuth(http.HandlerFunc(jobsHandler.ListJobs)))
	mux.Handle("GET /api/jobs/{id}", apiAuth(http.HandlerFunc(jobsHandler.GetJob)))

	mux.HandleFunc("GET /health", handlers.Health)

	return middleware.Recovery(deps.Log)(
		middleware.RequestID(
			middleware.Logger(deps.Log)(mux),
		),
	)
}
