package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juliuspc/broadcastbot/internal/config"
	"github.com/juliuspc/broadcastbot/internal/database"
	"github.com/juliuspc/broadcastbot/internal/telegram"
)

// Broadcaster fans one logical message out to every chat in the registry
// and keeps the ledger that lets the same broadcast be edited or deleted
// later across all per-chat copies.
type Broadcaster struct {
	store   database.Store
	gateway telegram.Gateway
	cfg     *config.Config
	logger  *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given store and gateway.
func NewBroadcaster(store database.Store, gateway telegram.Gateway, cfg *config.Config, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With("component", "broadcaster"),
	}
}

// SendBroadcast sends text to every known chat in registry order and
// returns how many copies were delivered. Each delivered copy is recorded
// in the ledger under broadcastID, strictly after the send succeeds, so a
// crash mid-fan-out never claims a message that was not sent. A blocked
// chat is removed from the registry instead of recorded; other failures are
// skipped without retry.
func (b *Broadcaster) SendBroadcast(ctx context.Context, text, broadcastID string) (int, error) {
	chats, err := b.store.ListChats(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, chatID := range chats {
		messageID, err := b.gateway.SendMessage(ctx, chatID, text, b.cfg.Telegram.ParseMode)
		if err != nil {
			if errors.Is(err, telegram.ErrChatBlocked) {
				b.logger.InfoContext(ctx, "Chat blocked the bot, removing from registry", "chat_id", chatID)
				if _, removeErr := b.store.RemoveChat(ctx, chatID); removeErr != nil {
					b.logger.ErrorContext(ctx, "Failed to remove blocked chat", "chat_id", chatID, "error", removeErr)
				}
				continue
			}
			b.logger.WarnContext(ctx, "Failed to send broadcast copy", "chat_id", chatID, "broadcast_id", broadcastID, "error", err)
			continue
		}

		if err := b.store.RecordBroadcastMessage(ctx, broadcastID, chatID, messageID, time.Now()); err != nil {
			// Delivered but untracked: the copy cannot be edited or deleted
			// later. Accepted inconsistency, already sent.
			b.logger.ErrorContext(ctx, "Delivered broadcast copy could not be recorded",
				"chat_id", chatID, "message_id", messageID, "broadcast_id", broadcastID, "error", err)
		}
		count++
	}

	b.logger.InfoContext(ctx, "Broadcast sent", "broadcast_id", broadcastID, "delivered", count, "chats", len(chats))
	return count, nil
}

// EditBroadcast replaces the text of every recorded copy of a broadcast and
// returns how many edits succeeded. Failed edits leave their ledger rows
// intact; an edit failure does not imply the copy is gone.
func (b *Broadcaster) EditBroadcast(ctx context.Context, text, broadcastID string) (int, error) {
	copies, err := b.store.ListBroadcastMessages(ctx, broadcastID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range copies {
		if err := b.gateway.EditMessageText(ctx, msg.ChatID, msg.MessageID, text, b.cfg.Telegram.ParseMode); err != nil {
			b.logger.WarnContext(ctx, "Failed to edit broadcast copy",
				"chat_id", msg.ChatID, "message_id", msg.MessageID, "broadcast_id", broadcastID, "error", err)
			continue
		}
		count++
	}

	b.logger.InfoContext(ctx, "Broadcast edited", "broadcast_id", broadcastID, "edited", count, "copies", len(copies))
	return count, nil
}

// DeleteBroadcast deletes every recorded copy of a broadcast and returns
// how many deletions succeeded. Each successful remote delete also removes
// the ledger row; failures keep theirs so a later attempt can retry.
func (b *Broadcaster) DeleteBroadcast(ctx context.Context, broadcastID string) (int, error) {
	copies, err := b.store.ListBroadcastMessages(ctx, broadcastID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range copies {
		if err := b.gateway.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
			b.logger.WarnContext(ctx, "Failed to delete broadcast copy",
				"chat_id", msg.ChatID, "message_id", msg.MessageID, "broadcast_id", broadcastID, "error", err)
			continue
		}
		if _, err := b.store.RemoveBroadcastMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
			b.logger.ErrorContext(ctx, "Failed to remove deleted copy from ledger",
				"chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		}
		count++
	}

	b.logger.InfoContext(ctx, "Broadcast deleted", "broadcast_id", broadcastID, "deleted", count, "copies", len(copies))
	return count, nil
}
