package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-bot/internal/app"
	"github.com/dvloznov/expense-bot/internal/bot"
	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/jobs/inmemory"
	"github.com/dvloznov/expense-bot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Long-polling alternative to cmd/bot for local runs. Telegram refuses
// getUpdates while a webhook is set, so the webhook is removed first.
func main() {
	cfg := config.Load()
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

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	if err := bot.DeleteWebhook(botAPI); err != nil {
		log.Fatal().Err(err).Msg("Failed to remove webhook")
	}

	updates := bot.NewHandler(deps.Recorder, bot.NewTelegramSender(botAPI), bot.Options{
		Seen:  dedup.New(cfg.DedupCapacity),
		Debug: cfg.Debug,
	})

	jobStore := inmemory.NewStore(inmemory.DefaultMaxJobs)
	jobQueue := inmemory.NewQueue(100, cfg.Workers, jobStore)
	if err := jobQueue.Start(ctx, func(ctx context.Context, job *jobs.MessageJob) error {
		return updates.HandleUpdate(ctx, job.Update)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	incoming := botAPI.GetUpdatesChan(u)

	log.Info().Str("bot", botAPI.Self.UserName).Msg("Polling for updates...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

poll:
	for {
		select {
		case <-quit:
			break poll
		case update, ok := <-incoming:
			if !ok {
				break poll
			}
			if update.Message == nil {
				continue
			}
			if err := jobQueue.PublishMessage(ctx, jobs.NewMessageJob(update)); err != nil {
				log.Error().Err(err).Int("update_id", update.UpdateID).Msg("Failed to enqueue update")
			}
		}
	}

	log.Info().Msg("Shutting down poller...")
	botAPI.StopReceivingUpdates()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Poller exited")
}
