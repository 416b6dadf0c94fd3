package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-bot/internal/api"
	"github.com/dvloznov/expense-bot/internal/app"
	"github.com/dvloznov/expense-bot/internal/bot"
	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/jobs/inmemory"
	"github.com/dvloznov/expense-bot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()
	cfg.Port = *port

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.TelegramBotToken == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.TelegramWebhookSecret == "" {
		log.Warn().Msg("No TELEGRAM_WEBHOOK_SECRET configured - webhook requests are not authenticated")
	}
	if cfg.APIToken == "" {
		log.Warn().Msg("No API_TOKEN configured - /api routes reject all requests")
	}

	ctx := logger.WithContext(context.Background(), log)

	deps, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	log.Info().Str("bot", botAPI.Self.UserName).Msg("Connected to Telegram")

	updates := bot.NewHandler(deps.Recorder, bot.NewTelegramSender(botAPI), bot.Options{
		Seen:  dedup.New(cfg.DedupCapacity),
		Debug: cfg.Debug,
	})

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(inmemory.DefaultMaxJobs)
	jobQueue := inmemory.NewQueue(100, cfg.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	handleJob := func(ctx context.Context, job *jobs.MessageJob) error {
		return updates.HandleUpdate(ctx, job.Update)
	}
	if err := jobQueue.Start(workerCtx, handleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.Workers).Msg("Started job workers")

	handler := api.NewRouter(api.Deps{
		Publisher:     jobQueue,
		Jobs:          jobStore,
		Summary:       deps.Recorder,
		WebhookSecret: cfg.TelegramWebhookSecret,
		APIToken:      cfg.APIToken,
		Log:           log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting bot server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Finish accepted updates before the workers lose their context
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
