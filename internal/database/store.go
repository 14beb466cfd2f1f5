package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations: the chat registry,
// the update log, and the broadcast ledger. Methods accept context.Context
// for cancellation and timeouts. Each mutation is a single atomic row
// operation; no cross-table transactions are needed.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// AddChat inserts a chat unless already present. It never errors on a
	// duplicate; the returned bool reports whether this was a new chat.
	AddChat(ctx context.Context, chatID int64) (bool, error)

	// RemoveChat deletes a chat row if present. Idempotent; the returned
	// bool reports whether a row was actually removed.
	RemoveChat(ctx context.Context, chatID int64) (bool, error)

	// ListChats returns all known chat ids in insertion order. Each call is
	// a fresh query with snapshot semantics.
	ListChats(ctx context.Context) ([]int64, error)

	// RecordUpdate atomically inserts an update id with its serialized
	// payload. It returns true if this is the first time the id has been
	// seen (caller should process it), false on a replay (caller must skip
	// all side effects). The primary key rejection is the synchronization
	// primitive, not a read-then-write sequence.
	RecordUpdate(ctx context.Context, updateID int64, payload []byte) (bool, error)

	// SweepUpdates deletes update-log rows older than the boundary and
	// returns how many were removed. An empty result is not an error.
	SweepUpdates(ctx context.Context, before time.Time) (int64, error)

	// RecordBroadcastMessage appends one per-chat copy of a broadcast to
	// the ledger.
	RecordBroadcastMessage(ctx context.Context, broadcastID string, chatID int64, messageID int, sentAt time.Time) error

	// ListBroadcastMessages returns all copies belonging to one logical
	// broadcast, in send order.
	ListBroadcastMessages(ctx context.Context, broadcastID string) ([]BroadcastMessage, error)

	// RemoveBroadcastMessage deletes a single ledger row. The returned bool
	// reports whether a row was actually removed.
	RemoveBroadcastMessage(ctx context.Context, chatID int64, messageID int) (bool, error)

	// SweepBroadcastMessages deletes ledger rows older than the boundary
	// and returns how many were removed.
	SweepBroadcastMessages(ctx context.Context, before time.Time) (int64, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddChat inserts a chat row unless one exists. The ON CONFLICT clause makes
// the duplicate case a no-op rather than an error.
func (s *sqlxStore) AddChat(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, date_added) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		chatID, time.Now().Unix())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert chat", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to insert chat %d: %w", chatID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	created := rows > 0
	if created {
		s.logger.InfoContext(ctx, "Registered new chat", "chat_id", chatID)
	}
	return created, nil
}

// RemoveChat deletes a chat row. Removing an absent chat is not an error.
func (s *sqlxStore) RemoveChat(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete chat", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to delete chat %d: %w", chatID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	removed := rows > 0
	if removed {
		s.logger.InfoContext(ctx, "Removed chat", "chat_id", chatID)
	}
	return removed, nil
}

// ListChats returns all chat ids in insertion order. The chats table keeps
// its rowid independent of the id column, so rowid reflects insert sequence
// rather than id magnitude. Callers must tolerate snapshot semantics:
// concurrent mutation is not reflected mid-iteration.
func (s *sqlxStore) ListChats(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM chats ORDER BY rowid`); err != nil {
		s.logger.ErrorContext(ctx, "Failed to list chats", "error", err)
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return ids, nil
}

// RecordUpdate inserts the update id relying on the primary key for
// atomicity. A conflicting insert affects zero rows, which signals a replay.
func (s *sqlxStore) RecordUpdate(ctx context.Context, updateID int64, payload []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (update_id, date_added, update_json) VALUES (?, ?, ?)
		 ON CONFLICT (update_id) DO NOTHING`,
		updateID, time.Now().Unix(), string(payload))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record update", "update_id", updateID, "error", err)
		return false, fmt.Errorf("failed to record update %d: %w", updateID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// SweepUpdates removes update-log rows older than the retention boundary.
func (s *sqlxStore) SweepUpdates(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM updates WHERE date_added < ?`, before.Unix())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sweep updates", "error", err)
		return 0, fmt.Errorf("failed to sweep updates: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.InfoContext(ctx, "Swept old updates", "removed", rows, "before", before)
	}
	return rows, nil
}

// RecordBroadcastMessage appends one ledger row. Each successful send
// produces a distinct (chat_id, message_id), so no conflict handling is
// needed across calls.
func (s *sqlxStore) RecordBroadcastMessage(ctx context.Context, broadcastID string, chatID int64, messageID int, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, message_id, date_added, chosen_id) VALUES (?, ?, ?, ?)`,
		chatID, messageID, sentAt.Unix(), broadcastID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record broadcast message",
			"broadcast_id", broadcastID, "chat_id", chatID, "message_id", messageID, "error", err)
		return fmt.Errorf("failed to record broadcast message for chat %d: %w", chatID, err)
	}
	return nil
}

// ListBroadcastMessages returns the per-chat copies of one broadcast in
// send order.
func (s *sqlxStore) ListBroadcastMessages(ctx context.Context, broadcastID string) ([]BroadcastMessage, error) {
	var msgs []BroadcastMessage
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT chat_id, message_id, date_added, chosen_id FROM messages WHERE chosen_id = ? ORDER BY rowid`,
		broadcastID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list broadcast messages", "broadcast_id", broadcastID, "error", err)
		return nil, fmt.Errorf("failed to list broadcast messages for %q: %w", broadcastID, err)
	}
	return msgs, nil
}

// RemoveBroadcastMessage deletes a single per-chat copy from the ledger.
func (s *sqlxStore) RemoveBroadcastMessage(ctx context.Context, chatID int64, messageID int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to remove broadcast message",
			"chat_id", chatID, "message_id", messageID, "error", err)
		return false, fmt.Errorf("failed to remove broadcast message %d/%d: %w", chatID, messageID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// SweepBroadcastMessages removes ledger rows older than the retention
// boundary.
func (s *sqlxStore) SweepBroadcastMessages(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE date_added < ?`, before.Unix())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sweep broadcast messages", "error", err)
		return 0, fmt.Errorf("failed to sweep broadcast messages: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.InfoContext(ctx, "Swept old broadcast messages", "removed", rows, "before", before)
	}
	return rows, nil
}
