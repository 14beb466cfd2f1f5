// Package main contains the entrypoint for the broadcast bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/juliuspc/broadcastbot/internal/bot"
	"github.com/juliuspc/broadcastbot/internal/bot/tasks"
	"github.com/juliuspc/broadcastbot/internal/config"
	"github.com/juliuspc/broadcastbot/internal/database"
	"github.com/juliuspc/broadcastbot/internal/logger"
	"github.com/juliuspc/broadcastbot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, gateway,
// processor, broadcaster, scheduler), executes either a one-shot broadcast
// operation or the long-running delivery loop, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	sendText := flag.String("broadcast", "", "Send a broadcast with the given text and exit")
	editText := flag.String("edit-broadcast", "", "Edit an existing broadcast to the given text and exit")
	deleteFlag := flag.Bool("delete-broadcast", false, "Delete an existing broadcast and exit")
	broadcastID := flag.String("broadcast-id", "", "Broadcast identifier for -broadcast/-edit-broadcast/-delete-broadcast")
	pollOnce := flag.Bool("process-updates", false, "Fetch pending updates once, process them, and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	botID, err := cfg.Telegram.BotID()
	if err != nil {
		log.Error("Failed to derive bot id from token", "error", err)
		return 1
	}

	// The default handler closes over the processor, which needs the
	// gateway, which wraps the bot. The processor is assigned before any
	// update can arrive since delivery starts last.
	var processor *bot.Processor
	defaultHandler := func(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
		processor.Handle(ctx, update)
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(defaultHandler),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	gateway := telegram.NewGateway(tg, cfg.Telegram.Token, log)
	processor = bot.NewProcessor(store, gateway, cfg, botID, log)
	broadcaster := bot.NewBroadcaster(store, gateway, cfg, log)

	if done, code := runOneShot(ctx, log, gateway, processor, broadcaster,
		*sendText, *editText, *deleteFlag, *broadcastID, *pollOnce); done {
		return code
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	taskMap := tasks.RegisterAllTasks(tDeps)

	sched, err := bot.NewScheduler(log, cfg.Retention.Schedule, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, gateway, tg, sched, taskMap["retention_sweep"])

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// runOneShot executes a single broadcast or polling operation when one of
// the one-shot flags is set. It reports whether such a flag was handled.
func runOneShot(
	ctx context.Context,
	log *slog.Logger,
	gateway telegram.Gateway,
	processor *bot.Processor,
	broadcaster *bot.Broadcaster,
	sendText, editText string,
	deleteFlag bool,
	broadcastID string,
	pollOnce bool,
) (bool, int) {
	switch {
	case sendText != "":
		return true, broadcastOp(log, broadcastID, func(id string) (int, error) {
			return broadcaster.SendBroadcast(ctx, sendText, id)
		}, "delivered")
	case editText != "":
		return true, broadcastOp(log, broadcastID, func(id string) (int, error) {
			return broadcaster.EditBroadcast(ctx, editText, id)
		}, "edited")
	case deleteFlag:
		return true, broadcastOp(log, broadcastID, func(id string) (int, error) {
			return broadcaster.DeleteBroadcast(ctx, id)
		}, "deleted")
	case pollOnce:
		raw, err := gateway.GetUpdates(ctx)
		if err != nil {
			log.Error("Failed to fetch updates", "error", err)
			return true, 1
		}
		count, err := processor.ProcessBatch(ctx, raw)
		if err != nil {
			log.Error("Failed to process update batch", "error", err)
			return true, 1
		}
		fmt.Printf("%d updates processed\n", count)
		return true, 0
	default:
		return false, 0
	}
}

func broadcastOp(log *slog.Logger, broadcastID string, op func(string) (int, error), verb string) int {
	if broadcastID == "" {
		log.Error("Missing -broadcast-id for broadcast operation")
		return 1
	}
	count, err := op(broadcastID)
	if err != nil {
		log.Error("Broadcast operation failed", "broadcast_id", broadcastID, "error", err)
		return 1
	}
	fmt.Printf("%d messages %s\n", count, verb)
	return 0
}
