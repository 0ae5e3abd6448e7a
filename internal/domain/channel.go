package domain

import "context"

// Channel is a messaging transport (Telegram, WhatsApp, terminal).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, reply Reply) error
}

// MediaFetcher downloads the raw bytes behind an AttachmentRef. Channels that
// deliver attachments implement it.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, ref AttachmentRef) (data []byte, mimeType string, err error)
}
