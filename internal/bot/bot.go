package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/juliuspc/broadcastbot/internal/bot/tasks"
	"github.com/juliuspc/broadcastbot/internal/config"
	"github.com/juliuspc/broadcastbot/internal/database"
	"github.com/juliuspc/broadcastbot/internal/telegram"
)

// Bot represents the main bot application and manages its components'
// lifecycle: update delivery (polling or webhook), the maintenance
// scheduler, and graceful shutdown.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	db        *sqlx.DB
	store     database.Store
	gateway   telegram.Gateway
	tgBot     *tgbot.Bot
	scheduler *Scheduler
	sweep     tasks.ScheduledTaskFunc
}

// NewBot creates a new instance of the bot with all required dependencies.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	db *sqlx.DB,
	store database.Store,
	gateway telegram.Gateway,
	tgBot *tgbot.Bot,
	scheduler *Scheduler,
	sweep tasks.ScheduledTaskFunc,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		db:        db,
		store:     store,
		gateway:   gateway,
		tgBot:     tgBot,
		scheduler: scheduler,
		sweep:     sweep,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on
// context cancellation. It returns an error if any component fails during
// startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	// Retention sweep runs once at startup, then on the cron schedule.
	if err := b.sweep(ctx); err != nil {
		b.logger.Warn("Startup retention sweep failed", "error", err)
	}

	if err := b.advertiseCommands(ctx); err != nil {
		b.logger.Warn("Failed to advertise bot commands", "error", err)
	}

	if err := b.enforceDeliveryMode(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	switch b.cfg.Delivery.Mode {
	case config.DeliveryWebhook:
		b.runWebhook(g, gCtx)
	default:
		b.runPolling(g, gCtx)
	}

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...", "delivery_mode", b.cfg.Delivery.Mode)
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// enforceDeliveryMode makes the polling/webhook choice explicit at startup.
// Polling with a leftover webhook registration would never receive updates;
// webhook mode must register its URL before serving. The platform cannot
// dual-deliver after this point.
func (b *Bot) enforceDeliveryMode(ctx context.Context) error {
	info, err := b.gateway.WebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to query webhook state: %w", err)
	}

	switch b.cfg.Delivery.Mode {
	case config.DeliveryWebhook:
		if err := b.gateway.SetWebhook(ctx, b.cfg.Delivery.WebhookURL); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
	default:
		if info.URL != "" {
			b.logger.Warn("Polling mode with a registered webhook, deleting it", "url", info.URL)
			if err := b.gateway.DeleteWebhook(ctx); err != nil {
				return fmt.Errorf("failed to delete stale webhook: %w", err)
			}
		}
	}
	return nil
}

func (b *Bot) advertiseCommands(ctx context.Context) error {
	return b.gateway.SetMyCommands(ctx, []models.BotCommand{
		{Command: "start", Description: "Subscribe to broadcasts"},
		{Command: "stop", Description: "Unsubscribe from broadcasts"},
	})
}

func (b *Bot) runPolling(g *errgroup.Group, gCtx context.Context) {
	g.Go(func() error {
		b.logger.Info("Starting Telegram long-poll listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram listener stopped.")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})
}

func (b *Bot) runWebhook(g *errgroup.Group, gCtx context.Context) {
	srv := &http.Server{
		Addr:              b.cfg.Delivery.ListenAddr,
		Handler:           b.tgBot.WebhookHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		b.logger.Info("Starting webhook update consumer...")
		b.tgBot.StartWebhook(gCtx)
		b.logger.Info("Webhook update consumer stopped.")
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting webhook HTTP server...", "addr", b.cfg.Delivery.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
