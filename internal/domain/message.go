package domain

import (
	"strings"
	"time"
)

// AttachmentKind classifies inbound media.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
)

// AttachmentRef points at media carried by an inbound message. Locator is a
// URL or a platform file id, resolved by the channel's MediaFetcher.
type AttachmentRef struct {
	Kind     AttachmentKind
	Locator  string
	MIMEType string
}

// InboundMessage is one normalized unit of user input.
type InboundMessage struct {
	ID         string // correlation id, logs only
	Channel    string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string // empty when the event carried no text
	Attachment *AttachmentRef
	ReceivedAt time.Time
}

// HasText reports whether the message carries a non-blank text body.
func (m InboundMessage) HasText() bool {
	return strings.TrimSpace(m.Text) != ""
}

// MediaReply references a durable media URL to send alongside a reply.
type MediaReply struct {
	Kind AttachmentKind
	URL  string
}

// Reply is what a handler produces for the outbound transport.
type Reply struct {
	Body  string
	Media *MediaReply
}

// TextReply is shorthand for a body-only reply.
func TextReply(body string) Reply {
	return Reply{Body: body}
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Reply   Reply
	TraceID string
}
