package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Gateway is the thin adapter over the Telegram Bot API consumed by the
// update processor and the broadcaster. Each call maps 1:1 to one remote
// call and never retries internally; retry policy belongs to the caller.
type Gateway interface {
	// SendMessage sends text to a chat and returns the platform-assigned
	// message id. A chat that has excluded the bot yields ErrChatBlocked.
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) (int, error)

	// EditMessageText replaces the text of a previously sent message.
	// Failures classify as ErrMessageNotFound or ErrMessageExpired.
	EditMessageText(ctx context.Context, chatID int64, messageID int, text, parseMode string) error

	// DeleteMessage removes a previously sent message. Rejections outside
	// the platform's deletion window classify as ErrMessageExpired.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// SetWebhook registers the push-delivery endpoint. The URL shape is
	// validated locally first; a mismatch returns ErrInvalidWebhookURL
	// without any remote call.
	SetWebhook(ctx context.Context, webhookURL string) error

	// DeleteWebhook removes any configured webhook so polling can take over.
	DeleteWebhook(ctx context.Context) error

	// WebhookInfo reports the currently configured webhook, if any.
	WebhookInfo(ctx context.Context) (*models.WebhookInfo, error)

	// GetUpdates fetches the raw polled update envelope. Only meaningful
	// when no webhook is configured.
	GetUpdates(ctx context.Context) ([]byte, error)

	// SetMyCommands advertises the bot's command menu.
	SetMyCommands(ctx context.Context, commands []models.BotCommand) error

	// GetMyCommands returns the currently advertised command menu.
	GetMyCommands(ctx context.Context) ([]models.BotCommand, error)
}

const apiBaseURL = "https://api.telegram.org"

// botGateway implements Gateway over a go-telegram/bot instance. The raw
// getUpdates fetch goes straight over HTTP since the library keeps its
// polling envelope internal.
type botGateway struct {
	b          *bot.Bot
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGateway wraps a bot instance as a Gateway.
func NewGateway(b *bot.Bot, token string, logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &botGateway{
		b:          b,
		token:      token,
		httpClient: http.DefaultClient,
		logger:     logger.With("component", "gateway"),
	}
}

func (g *botGateway) SendMessage(ctx context.Context, chatID int64, text, parseMode string) (int, error) {
	msg, err := g.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseMode(parseMode),
	})
	if err != nil {
		return 0, fmt.Errorf("sendMessage to chat %d: %w", chatID, classifySendError(err))
	}
	return msg.ID, nil
}

func (g *botGateway) EditMessageText(ctx context.Context, chatID int64, messageID int, text, parseMode string) error {
	_, err := g.b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: models.ParseMode(parseMode),
	})
	if err != nil {
		return fmt.Errorf("editMessageText %d/%d: %w", chatID, messageID, classifyEditError(err))
	}
	return nil
}

func (g *botGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := g.b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("deleteMessage %d/%d: %w", chatID, messageID, classifyDeleteError(err))
	}
	return nil
}

func (g *botGateway) SetWebhook(ctx context.Context, webhookURL string) error {
	if !ValidWebhookURL(webhookURL) {
		return fmt.Errorf("%w: %q", ErrInvalidWebhookURL, webhookURL)
	}
	ok, err := g.b.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL})
	if err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("setWebhook: remote refused url %q", webhookURL)
	}
	g.logger.InfoContext(ctx, "Webhook registered", "url", webhookURL)
	return nil
}

func (g *botGateway) DeleteWebhook(ctx context.Context) error {
	ok, err := g.b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: false})
	if err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("deleteWebhook: remote refused")
	}
	return nil
}

func (g *botGateway) WebhookInfo(ctx context.Context) (*models.WebhookInfo, error) {
	info, err := g.b.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("getWebhookInfo: %w", err)
	}
	return info, nil
}

func (g *botGateway) GetUpdates(ctx context.Context) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates", apiBaseURL, url.PathEscape(g.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: failed to read response body: %w", err)
	}
	return body, nil
}

func (g *botGateway) SetMyCommands(ctx context.Context, commands []models.BotCommand) error {
	ok, err := g.b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands})
	if err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	if !ok {
		return fmt.Errorf("setMyCommands: remote refused")
	}
	return nil
}

func (g *botGateway) GetMyCommands(ctx context.Context) ([]models.BotCommand, error) {
	commands, err := g.b.GetMyCommands(ctx, &bot.GetMyCommandsParams{})
	if err != nil {
		return nil, fmt.Errorf("getMyCommands: %w", err)
	}
	return commands, nil
}
