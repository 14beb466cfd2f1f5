package bot_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/juliuspc/broadcastbot/internal/database"
	"github.com/juliuspc/broadcastbot/internal/telegram"
)

type sentMessage struct {
	ChatID    int64
	MessageID int
	Text      string
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
}

type deletedMessage struct {
	ChatID    int64
	MessageID int
}

// fakeGateway is a scripted Gateway for core tests. Chats listed in blocked
// reject sends with ErrChatBlocked; expired message ids reject edits and
// deletes with ErrMessageExpired.
type fakeGateway struct {
	nextMessageID int
	blocked       map[int64]bool
	expired       map[int]bool

	sent    []sentMessage
	edited  []editedMessage
	deleted []deletedMessage
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextMessageID: 1000,
		blocked:       make(map[int64]bool),
		expired:       make(map[int]bool),
	}
}

func (g *fakeGateway) SendMessage(_ context.Context, chatID int64, text, _ string) (int, error) {
	if g.blocked[chatID] {
		return 0, fmt.Errorf("sendMessage to chat %d: %w", chatID, telegram.ErrChatBlocked)
	}
	g.nextMessageID++
	g.sent = append(g.sent, sentMessage{ChatID: chatID, MessageID: g.nextMessageID, Text: text})
	return g.nextMessageID, nil
}

func (g *fakeGateway) EditMessageText(_ context.Context, chatID int64, messageID int, text, _ string) error {
	if g.expired[messageID] {
		return fmt.Errorf("editMessageText %d/%d: %w", chatID, messageID, telegram.ErrMessageExpired)
	}
	g.edited = append(g.edited, editedMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if g.expired[messageID] {
		return fmt.Errorf("deleteMessage %d/%d: %w", chatID, messageID, telegram.ErrMessageExpired)
	}
	g.deleted = append(g.deleted, deletedMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

func (g *fakeGateway) SetWebhook(_ context.Context, webhookURL string) error {
	if !telegram.ValidWebhookURL(webhookURL) {
		return fmt.Errorf("%w: %q", telegram.ErrInvalidWebhookURL, webhookURL)
	}
	return nil
}

func (g *fakeGateway) DeleteWebhook(context.Context) error { return nil }

func (g *fakeGateway) WebhookInfo(context.Context) (*models.WebhookInfo, error) {
	return &models.WebhookInfo{}, nil
}

func (g *fakeGateway) GetUpdates(context.Context) ([]byte, error) {
	return []byte(`{"ok":true,"result":[]}`), nil
}

func (g *fakeGateway) SetMyCommands(context.Context, []models.BotCommand) error { return nil }

func (g *fakeGateway) GetMyCommands(context.Context) ([]models.BotCommand, error) { return nil, nil }

// newTestStore returns a Store over a fresh in-memory database.
func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.Default())
}
