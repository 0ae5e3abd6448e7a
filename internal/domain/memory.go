package domain

import (
	"context"
	"time"
)

// HistoryWindow is how far back a sender's messages are remembered.
const HistoryWindow = 24 * time.Hour

// HistoryStore keeps a time-windowed log of what each sender wrote.
type HistoryStore interface {
	Append(ctx context.Context, senderID, text string, at time.Time) error

	// Recent returns the sender's messages newer than now-HistoryWindow, oldest first.
	Recent(ctx context.Context, senderID string) ([]string, error)

	// Sweep deletes entries older than now-HistoryWindow and reports how many went.
	Sweep(ctx context.Context, now time.Time) (int64, error)

	Close() error
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageHost re-hosts raw image bytes and returns a durable public URL.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}
