package database

// Chat is one conversation thread known to the bot. A row exists from the
// chat's first inbound update (or /start) until the bot is removed or the
// chat sends /stop.
type Chat struct {
	ID        int64 `db:"id"`
	DateAdded int64 `db:"date_added"` // epoch seconds
}

// SeenUpdate records one inbound update for deduplication and audit.
// The primary key on UpdateID is the dedup gate: a second insert with the
// same id is rejected by the constraint, not by an application-level check.
type SeenUpdate struct {
	UpdateID   int64  `db:"update_id"`
	DateAdded  int64  `db:"date_added"` // epoch seconds
	UpdateJSON string `db:"update_json"`
}

// BroadcastMessage is one per-chat copy of a logical broadcast. All rows
// sharing a ChosenID form one broadcast; MessageID is assigned by Telegram
// at send time. ChatID is a back-reference, not enforced by a foreign key:
// a chat may leave the registry while its broadcast rows remain until swept.
type BroadcastMessage struct {
	ChatID    int64  `db:"chat_id"`
	MessageID int    `db:"message_id"`
	DateAdded int64  `db:"date_added"` // epoch seconds
	ChosenID  string `db:"chosen_id"`
}
