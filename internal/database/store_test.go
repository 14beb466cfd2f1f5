package database_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/juliuspc/broadcastbot/internal/database"
)

// newTestStore returns a Store backed by a fresh in-memory database with
// migrations applied, plus the raw handle for fixture setup.
func newTestStore(t *testing.T) (database.Store, *sqlx.DB) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.Default()), db
}

func TestAddRemoveChat(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.AddChat(ctx, 100)
	if err != nil {
		t.Fatalf("AddChat() error = %v", err)
	}
	if !created {
		t.Error("AddChat() first insert: created = false, want true")
	}

	created, err = store.AddChat(ctx, 100)
	if err != nil {
		t.Fatalf("AddChat() duplicate error = %v", err)
	}
	if created {
		t.Error("AddChat() duplicate insert: created = true, want false")
	}

	removed, err := store.RemoveChat(ctx, 100)
	if err != nil {
		t.Fatalf("RemoveChat() error = %v", err)
	}
	if !removed {
		t.Error("RemoveChat() existing chat: removed = false, want true")
	}

	removed, err = store.RemoveChat(ctx, 100)
	if err != nil {
		t.Fatalf("RemoveChat() absent chat error = %v", err)
	}
	if removed {
		t.Error("RemoveChat() absent chat: removed = true, want false")
	}

	chats, err := store.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("ListChats() after removal = %v, want empty", chats)
	}
}

func TestListChatsInsertionOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{42, 7, 1000, 3} {
		if _, err := store.AddChat(ctx, id); err != nil {
			t.Fatalf("AddChat(%d) error = %v", id, err)
		}
	}

	chats, err := store.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}

	want := []int64{42, 7, 1000, 3}
	if len(chats) != len(want) {
		t.Fatalf("ListChats() returned %d chats, want %d", len(chats), len(want))
	}
	for i := range want {
		if chats[i] != want[i] {
			t.Errorf("ListChats()[%d] = %d, want %d", i, chats[i], want[i])
		}
	}

	// A chat that leaves and rejoins moves to the end of the order.
	if _, err := store.RemoveChat(ctx, 42); err != nil {
		t.Fatalf("RemoveChat(42) error = %v", err)
	}
	if _, err := store.AddChat(ctx, 42); err != nil {
		t.Fatalf("AddChat(42) error = %v", err)
	}

	chats, err = store.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	want = []int64{7, 1000, 3, 42}
	if len(chats) != len(want) {
		t.Fatalf("ListChats() after rejoin returned %d chats, want %d", len(chats), len(want))
	}
	for i := range want {
		if chats[i] != want[i] {
			t.Errorf("ListChats() after rejoin [%d] = %d, want %d", i, chats[i], want[i])
		}
	}
}

func TestRecordUpdateDeduplicates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	fresh, err := store.RecordUpdate(ctx, 555, []byte(`{"update_id":555}`))
	if err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}
	if !fresh {
		t.Error("RecordUpdate() first insert: fresh = false, want true")
	}

	fresh, err = store.RecordUpdate(ctx, 555, []byte(`{"update_id":555}`))
	if err != nil {
		t.Fatalf("RecordUpdate() replay error = %v", err)
	}
	if fresh {
		t.Error("RecordUpdate() replay: fresh = true, want false")
	}
}

func TestSweepUpdates(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-8 * 24 * time.Hour)

	// Backdate one row past the retention boundary.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO updates (update_id, date_added, update_json) VALUES (?, ?, ?)`,
		1, old.Unix(), "{}"); err != nil {
		t.Fatalf("failed to insert old update: %v", err)
	}
	if _, err := store.RecordUpdate(ctx, 2, []byte("{}")); err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}

	removed, err := store.SweepUpdates(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("SweepUpdates() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepUpdates() removed = %d, want 1", removed)
	}

	// The swept id is seen as fresh again; the recent one is still a replay.
	fresh, err := store.RecordUpdate(ctx, 1, []byte("{}"))
	if err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}
	if !fresh {
		t.Error("RecordUpdate() after sweep: fresh = false, want true")
	}
	fresh, err = store.RecordUpdate(ctx, 2, []byte("{}"))
	if err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}
	if fresh {
		t.Error("RecordUpdate() retained row: fresh = true, want false")
	}

	// Sweeping an empty window is a no-op, not an error.
	removed, err = store.SweepUpdates(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("SweepUpdates() empty window error = %v", err)
	}
	if removed != 0 {
		t.Errorf("SweepUpdates() empty window removed = %d, want 0", removed)
	}
}

func TestBroadcastLedgerRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Two broadcasts to the same chats; rows must stay separated by id.
	for _, chatID := range []int64{1, 2, 3} {
		if err := store.RecordBroadcastMessage(ctx, "a", chatID, int(chatID)*10, now); err != nil {
			t.Fatalf("RecordBroadcastMessage(a, %d) error = %v", chatID, err)
		}
		if err := store.RecordBroadcastMessage(ctx, "b", chatID, int(chatID)*10+1, now); err != nil {
			t.Fatalf("RecordBroadcastMessage(b, %d) error = %v", chatID, err)
		}
	}

	msgs, err := store.ListBroadcastMessages(ctx, "a")
	if err != nil {
		t.Fatalf("ListBroadcastMessages(a) error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("ListBroadcastMessages(a) returned %d rows, want 3", len(msgs))
	}
	for i, want := range []int64{1, 2, 3} {
		if msgs[i].ChatID != want {
			t.Errorf("ListBroadcastMessages(a)[%d].ChatID = %d, want %d", i, msgs[i].ChatID, want)
		}
		if msgs[i].ChosenID != "a" {
			t.Errorf("ListBroadcastMessages(a)[%d].ChosenID = %q, want %q", i, msgs[i].ChosenID, "a")
		}
	}

	removed, err := store.RemoveBroadcastMessage(ctx, 2, 20)
	if err != nil {
		t.Fatalf("RemoveBroadcastMessage() error = %v", err)
	}
	if !removed {
		t.Error("RemoveBroadcastMessage() existing row: removed = false, want true")
	}

	removed, err = store.RemoveBroadcastMessage(ctx, 2, 20)
	if err != nil {
		t.Fatalf("RemoveBroadcastMessage() absent row error = %v", err)
	}
	if removed {
		t.Error("RemoveBroadcastMessage() absent row: removed = true, want false")
	}

	msgs, err = store.ListBroadcastMessages(ctx, "a")
	if err != nil {
		t.Fatalf("ListBroadcastMessages(a) error = %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("ListBroadcastMessages(a) after removal returned %d rows, want 2", len(msgs))
	}

	// Broadcast "b" is untouched.
	msgs, err = store.ListBroadcastMessages(ctx, "b")
	if err != nil {
		t.Fatalf("ListBroadcastMessages(b) error = %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("ListBroadcastMessages(b) returned %d rows, want 3", len(msgs))
	}
}

func TestSweepBroadcastMessages(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.RecordBroadcastMessage(ctx, "old", 1, 11, now.Add(-10*24*time.Hour)); err != nil {
		t.Fatalf("RecordBroadcastMessage(old) error = %v", err)
	}
	if err := store.RecordBroadcastMessage(ctx, "new", 1, 12, now); err != nil {
		t.Fatalf("RecordBroadcastMessage(new) error = %v", err)
	}

	removed, err := store.SweepBroadcastMessages(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("SweepBroadcastMessages() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepBroadcastMessages() removed = %d, want 1", removed)
	}

	msgs, err := store.ListBroadcastMessages(ctx, "old")
	if err != nil {
		t.Fatalf("ListBroadcastMessages(old) error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("ListBroadcastMessages(old) after sweep returned %d rows, want 0", len(msgs))
	}

	msgs, err = store.ListBroadcastMessages(ctx, "new")
	if err != nil {
		t.Fatalf("ListBroadcastMessages(new) error = %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("ListBroadcastMessages(new) returned %d rows, want 1", len(msgs))
	}
}
