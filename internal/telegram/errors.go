package telegram

import (
	"errors"
	"strings"

	"github.com/go-telegram/bot"
)

// Failure classification for remote calls. Each remote rejection degrades to
// one of these sentinels so callers can react (remove a blocked chat, count
// an expired edit) without parsing transport errors themselves. Nothing here
// is retried by the gateway.
var (
	// ErrChatBlocked signals the remote reported the bot has been excluded
	// from the chat (blocked by the user or kicked from the group). Callers
	// react by removing the chat from the registry; the gateway itself
	// never touches the registry.
	ErrChatBlocked = errors.New("chat has blocked the bot")

	// ErrMessageNotFound signals the targeted message no longer exists.
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageExpired signals the remote refused an edit or delete
	// because the per-message time window has passed.
	ErrMessageExpired = errors.New("message expired")

	// ErrInvalidWebhookURL signals a webhook URL that failed the shape
	// check before any remote call was made.
	ErrInvalidWebhookURL = errors.New("invalid webhook url")
)

// classifySendError maps a sendMessage transport error onto the failure
// taxonomy. A 403 whose description names a block or kick becomes
// ErrChatBlocked; everything else passes through unclassified.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bot.ErrorForbidden) {
		desc := strings.ToLower(err.Error())
		if strings.Contains(desc, "blocked") || strings.Contains(desc, "kicked") || strings.Contains(desc, "deactivated") {
			return errors.Join(ErrChatBlocked, err)
		}
	}
	return err
}

// classifyEditError maps an editMessageText transport error onto the
// failure taxonomy.
func classifyEditError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bot.ErrorBadRequest) {
		desc := strings.ToLower(err.Error())
		if strings.Contains(desc, "message to edit not found") {
			return errors.Join(ErrMessageNotFound, err)
		}
		if strings.Contains(desc, "can't be edited") {
			return errors.Join(ErrMessageExpired, err)
		}
	}
	return err
}

// classifyDeleteError maps a deleteMessage transport error onto the failure
// taxonomy. The remote only permits deletion within a bounded window after
// send; any rejection outside that window reads as expired.
func classifyDeleteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bot.ErrorBadRequest) {
		desc := strings.ToLower(err.Error())
		if strings.Contains(desc, "can't be deleted") || strings.Contains(desc, "message to delete not found") {
			return errors.Join(ErrMessageExpired, err)
		}
	}
	return err
}
