// Package bot implements the update-processing and broadcast-tracking core:
// idempotent ingestion of inbound updates, chat lifecycle maintenance,
// command dispatch, and broadcast fan-out with ledger bookkeeping.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/juliuspc/broadcastbot/internal/config"
	"github.com/juliuspc/broadcastbot/internal/database"
	"github.com/juliuspc/broadcastbot/internal/telegram"
)

// Outcome is the terminal state of processing one update.
type Outcome string

const (
	// OutcomeDuplicate marks a replayed update id; no side effects applied.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeCommand marks an update dispatched through the command table.
	OutcomeCommand Outcome = "command"
	// OutcomeLeave marks an update that removed the bot from a chat.
	OutcomeLeave Outcome = "membership_leave"
	// OutcomeJoin marks the default path: the chat is (re)registered.
	OutcomeJoin Outcome = "membership_join"
)

var (
	// ErrUnknownCommand is reported when a command update names no
	// registered handler. It has no side effects.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMalformedEnvelope is reported when a polled batch envelope cannot
	// be parsed or carries ok=false. Nothing in the batch is processed.
	ErrMalformedEnvelope = errors.New("malformed update envelope")

	errNoChat = errors.New("update carries no chat")
)

// CommandFunc handles one parsed command. The command name arrives without
// the leading '/' or any '@botname' suffix.
type CommandFunc func(ctx context.Context, command string, update *models.Update) error

// Processor is the per-update state machine. It deduplicates via the update
// log, maintains the chat registry, dispatches commands, and sends replies
// through the gateway.
type Processor struct {
	store    database.Store
	gateway  telegram.Gateway
	cfg      *config.Config
	botID    int64
	commands map[string]CommandFunc
	logger   *slog.Logger
}

// NewProcessor creates the update processor. The welcome and stop texts
// come from cfg and are fixed for the processor's lifetime; botID is the
// bot's own numeric id, used to recognize membership-leave events.
func NewProcessor(store database.Store, gateway telegram.Gateway, cfg *config.Config, botID int64, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:    store,
		gateway:  gateway,
		cfg:      cfg,
		botID:    botID,
		commands: make(map[string]CommandFunc),
		logger:   logger.With("component", "processor"),
	}
	p.commands["stop"] = p.stopCommand
	return p
}

// RegisterCommand adds or replaces a command handler. This is the extension
// point for surrounding functionality; adding commands is configuration,
// not a code branch. The name must be given without the leading '/'.
func (p *Processor) RegisterCommand(name string, fn CommandFunc) {
	p.commands[strings.ToLower(name)] = fn
}

// Process runs one raw update through the state machine and returns its
// terminal outcome. A duplicate update id short-circuits before any side
// effect; the storage constraint, not an in-memory check, is what makes the
// gate safe under concurrent redelivery.
func (p *Processor) Process(ctx context.Context, update *models.Update) (Outcome, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("failed to serialize update %d: %w", update.ID, err)
	}

	fresh, err := p.store.RecordUpdate(ctx, update.ID, payload)
	if err != nil {
		return "", err
	}
	if !fresh {
		p.logger.DebugContext(ctx, "Skipping replayed update", "update_id", update.ID)
		return OutcomeDuplicate, nil
	}

	// /start is the join path, not a table command.
	if name, ok := commandName(update.Message); ok && name != "start" {
		return OutcomeCommand, p.dispatchCommand(ctx, name, update)
	}

	if chatID, left := p.leftChat(update); left {
		_, err := p.store.RemoveChat(ctx, chatID)
		if err == nil {
			p.logger.InfoContext(ctx, "Bot removed from chat", "chat_id", chatID, "update_id", update.ID)
		}
		return OutcomeLeave, err
	}

	return OutcomeJoin, p.registerChat(ctx, update)
}

// ProcessBatch ingests a polled response envelope. An envelope with
// ok=false is a hard failure and nothing is processed. Entries are handled
// independently in arrival order; the returned count covers newly processed
// updates only, excluding duplicates and failures.
func (p *Processor) ProcessBatch(ctx context.Context, raw []byte) (int, error) {
	var envelope struct {
		OK          bool            `json:"ok"`
		Result      []models.Update `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !envelope.OK {
		return 0, fmt.Errorf("%w: remote error %d: %s", ErrMalformedEnvelope, envelope.ErrorCode, envelope.Description)
	}

	count := 0
	for i := range envelope.Result {
		update := &envelope.Result[i]
		outcome, err := p.Process(ctx, update)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to process update", "update_id", update.ID, "outcome", outcome, "error", err)
			continue
		}
		if outcome != OutcomeDuplicate {
			count++
		}
	}
	return count, nil
}

// Handle adapts Process to the delivery loop: outcomes are logged, never
// propagated, so one bad update cannot stall delivery.
func (p *Processor) Handle(ctx context.Context, update *models.Update) {
	outcome, err := p.Process(ctx, update)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to process update", "update_id", update.ID, "outcome", outcome, "error", err)
		return
	}
	p.logger.DebugContext(ctx, "Processed update", "update_id", update.ID, "outcome", outcome)
}

func (p *Processor) dispatchCommand(ctx context.Context, name string, update *models.Update) error {
	fn, ok := p.commands[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return fn(ctx, name, update)
}

// registerChat is the default path: the chat is added to the registry, and
// a newly seen chat gets the configured welcome message. Re-registration of
// a known chat sends nothing.
func (p *Processor) registerChat(ctx context.Context, update *models.Update) error {
	chatID, ok := chatIDOf(update)
	if !ok {
		return fmt.Errorf("%w: update %d", errNoChat, update.ID)
	}

	created, err := p.store.AddChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !created || p.cfg.Messages.Welcome == "" {
		return nil
	}

	if _, err := p.gateway.SendMessage(ctx, chatID, p.cfg.Messages.Welcome, p.cfg.Telegram.ParseMode); err != nil {
		if errors.Is(err, telegram.ErrChatBlocked) {
			p.logger.InfoContext(ctx, "Chat blocked the bot before welcome, removing", "chat_id", chatID)
			_, removeErr := p.store.RemoveChat(ctx, chatID)
			return removeErr
		}
		p.logger.WarnContext(ctx, "Failed to send welcome message", "chat_id", chatID, "error", err)
	}
	return nil
}

// stopCommand is the builtin /stop handler: send the stop message, then
// remove the chat from the registry. The removal happens even when the send
// fails; a chat asking to leave must leave.
func (p *Processor) stopCommand(ctx context.Context, _ string, update *models.Update) error {
	chatID := update.Message.Chat.ID

	if p.cfg.Messages.Stop != "" {
		if _, err := p.gateway.SendMessage(ctx, chatID, p.cfg.Messages.Stop, p.cfg.Telegram.ParseMode); err != nil {
			p.logger.WarnContext(ctx, "Failed to send stop message", "chat_id", chatID, "error", err)
		}
	}

	_, err := p.store.RemoveChat(ctx, chatID)
	if err == nil {
		p.logger.InfoContext(ctx, "Chat unsubscribed", "chat_id", chatID)
	}
	return err
}

// commandName extracts the leading command from a message: the first entity
// must be a bot_command at offset zero and the text must begin with '/'.
// Any '@botname' suffix is stripped and the name is lowercased.
func commandName(msg *models.Message) (string, bool) {
	if msg == nil || len(msg.Entities) == 0 || !strings.HasPrefix(msg.Text, "/") {
		return "", false
	}

	entity := msg.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand || entity.Offset != 0 {
		return "", false
	}
	// Length 2 is the minimum for "/x"; anything shorter cannot be sliced.
	if entity.Length < 2 || entity.Length > len(msg.Text) {
		return "", false
	}

	name := msg.Text[1:entity.Length]
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// leftChat reports whether the update signals the bot's own removal from a
// chat, either via a left_chat_member naming the bot or a my_chat_member
// transition to left/kicked.
func (p *Processor) leftChat(update *models.Update) (int64, bool) {
	if update.Message != nil && update.Message.LeftChatMember != nil &&
		update.Message.LeftChatMember.ID == p.botID {
		return update.Message.Chat.ID, true
	}
	if update.MyChatMember != nil {
		switch update.MyChatMember.NewChatMember.Type {
		case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
			return update.MyChatMember.Chat.ID, true
		}
	}
	return 0, false
}

// chatIDOf extracts the chat an update belongs to, when one exists.
func chatIDOf(update *models.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.MyChatMember != nil:
		return update.MyChatMember.Chat.ID, true
	default:
		return 0, false
	}
}
