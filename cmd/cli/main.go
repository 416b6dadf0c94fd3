package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/app"
	"github.com/dvloznov/expense-bot/internal/bot"
	"github.com/dvloznov/expense-bot/internal/config"
	infraBQ "github.com/dvloznov/expense-bot/internal/infra/bigquery"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/notionsync"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log = logger.New()
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runAdd(log, cfg)
	case "summary":
		runSummary(log, cfg)
	case "download":
		runDownload(log, cfg)
	case "set-webhook":
		runSetWebhook(log, cfg)
	case "delete-webhook":
		runDeleteWebhook(log, cfg)
	case "bq-init":
		runBigQueryInit(log, cfg)
	case "notion-check":
		runNotionCheck(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Bot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add             Record expenses from a line of text")
	fmt.Println("  summary         Print the summary of all recorded expenses")
	fmt.Println("  download        Print a link to the expense file")
	fmt.Println("  set-webhook     Point Telegram at the bot's webhook URL")
	fmt.Println("  delete-webhook  Remove the Telegram webhook")
	fmt.Println("  bq-init         Create the BigQuery expenses table")
	fmt.Println("  notion-check    Verify the Notion database properties")
	fmt.Println("  help            Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func validate(log zerolog.Logger, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
}

func commandContext(log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return logger.WithContext(ctx, log), cancel
}

func runAdd(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	text := fs.String("text", "", "Expense text, e.g. \"lunch 250, taxi 180\"")
	chatID := fs.Int64("chat-id", 0, "Chat ID to attribute the records to")
	fs.Parse(os.Args[2:])

	if *text == "" && fs.NArg() > 0 {
		*text = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(*text) == "" {
		log.Fatal().Msg("Usage: cli add -text \"<expense text>\"")
	}
	validate(log, cfg)

	ctx, cancel := commandContext(log, 2*time.Minute)
	defer cancel()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	res, err := deps.Recorder.Record(ctx, pipeline.Message{
		ChatID:     *chatID,
		SenderName: "cli",
		Text:       *text,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Recording failed")
	}
	if len(res.Added) == 0 {
		fmt.Println("No expenses found.")
		return
	}

	fmt.Printf("\n=== Added (%d) ===\n", len(res.Added))
	for i, r := range res.Added {
		fmt.Printf("%d. %s\n", i+1, r.Description)
		fmt.Printf("   Date:     %s\n", r.Date)
		fmt.Printf("   Amount:   %s\n", ledger.FormatAmount(cfg.Currency, r.Amount))
		fmt.Printf("   Category: %s\n", r.Category)
	}
	fmt.Printf("\nRunning total: %s (%d records)\n", ledger.FormatAmount(cfg.Currency, res.GrandTotal), res.Count)
	if res.Location.URL != "" {
		fmt.Printf("File: %s\n", res.Location.URL)
	}
}

func runSummary(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	validate(log, cfg)

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	sum, err := deps.Recorder.Summary(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Summary failed")
	}
	fmt.Println(sum.Report.Text(cfg.Currency))
	if sum.Location.URL != "" {
		fmt.Printf("File: %s\n", sum.Location.URL)
	}
}

func runDownload(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	validate(log, cfg)

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	loc, err := deps.Recorder.Download(ctx)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("No expense file yet.")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Locating expense file failed")
	}
	fmt.Println(loc.URL)
}

func telegramClient(log zerolog.Logger, cfg *config.Config) *tgbotapi.BotAPI {
	if cfg.TelegramBotToken == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN is required")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	return botAPI
}

func runSetWebhook(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("set-webhook", flag.ExitOnError)
	url := fs.String("url", "", "Public base URL of the bot, e.g. https://bot.example.com")
	fs.Parse(os.Args[2:])

	if *url == "" {
		log.Fatal().Msg("Usage: cli set-webhook -url https://host")
	}
	endpoint := strings.TrimSuffix(*url, "/")
	if !strings.HasSuffix(endpoint, "/telegram/webhook") {
		endpoint += "/telegram/webhook"
	}

	botAPI := telegramClient(log, cfg)
	if err := bot.SetWebhook(botAPI, endpoint, cfg.TelegramWebhookSecret); err != nil {
		log.Fatal().Err(err).Msg("Setting webhook failed")
	}
	fmt.Printf("Webhook set to %s\n", endpoint)
}

func runDeleteWebhook(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("delete-webhook", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	botAPI := telegramClient(log, cfg)
	if err := bot.DeleteWebhook(botAPI); err != nil {
		log.Fatal().Err(err).Msg("Deleting webhook failed")
	}
	fmt.Println("Webhook deleted.")
}

func runBigQueryInit(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("bq-init", flag.ExitOnError)
	project := fs.String("project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT env)")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset (or set BIGQUERY_DATASET env)")
	fs.Parse(os.Args[2:])

	if *project == "" || *dataset == "" {
		log.Fatal().Msg("Usage: cli bq-init -project ID -dataset NAME")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	mirror, err := infraBQ.NewExpenseMirror(ctx, *project, *dataset, cfg.Currency)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer mirror.Close()

	created, err := mirror.EnsureTable(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Creating expenses table failed")
	}
	if created {
		fmt.Printf("Created %s.%s.expenses\n", *project, *dataset)
	} else {
		fmt.Printf("%s.%s.expenses already exists\n", *project, *dataset)
	}
}

func runNotionCheck(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("notion-check", flag.ExitOnError)
	databaseID := fs.String("database-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID env)")
	fs.Parse(os.Args[2:])

	if cfg.NotionToken == "" || *databaseID == "" {
		log.Fatal().Msg("NOTION_TOKEN and a database ID are required")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	mirror := notionsync.NewExpenseMirror(notionsync.NewNotionClient(cfg.NotionToken), *databaseID, cfg.Currency)
	if err := mirror.CheckDatabase(ctx); err != nil {
		log.Fatal().Err(err).Msg("Notion database is not usable")
	}
	fmt.Println("Notion database looks good.")
}
