// Package inbound turns platform payloads into domain.InboundMessage values.
// Normalizers never talk to the network; resolving an attachment locator
// into bytes is the transport's job.
package inbound

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"korabot/internal/domain"
)

func newMessage(channel, chatID, senderID, senderName, text string, at time.Time) domain.InboundMessage {
	if at.IsZero() {
		at = time.Now()
	}
	return domain.InboundMessage{
		ID:         uuid.NewString(),
		Channel:    channel,
		ChatID:     chatID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		ReceivedAt: at,
	}
}

func malformed(channel, reason string) error {
	return &domain.MalformedPayloadError{Channel: channel, Reason: reason}
}

// kindForMIME classifies a document by its MIME type.
func kindForMIME(mime string) domain.AttachmentKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(mime, "audio/"):
		return domain.AttachmentAudio
	case strings.HasPrefix(mime, "video/"):
		return domain.AttachmentVideo
	default:
		return domain.AttachmentDocument
	}
}
