package inbound

import (
	"strconv"
	"time"

	"korabot/internal/domain"
)

// WhatsApp Business Cloud API webhook payload.

type CloudPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

type CloudChange struct {
	Value CloudValue `json:"value"`
	Field string     `json:"field"`
}

type CloudValue struct {
	MessagingProduct string         `json:"messaging_product"`
	Contacts         []CloudContact `json:"contacts,omitempty"`
	Messages         []CloudMessage `json:"messages,omitempty"`
}

type CloudContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type CloudMessage struct {
	From      string      `json:"from"`
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"` // unix seconds as a string
	Type      string      `json:"type"`
	Text      *CloudText  `json:"text,omitempty"`
	Image     *CloudMedia `json:"image,omitempty"`
	Audio     *CloudMedia `json:"audio,omitempty"`
	Video     *CloudMedia `json:"video,omitempty"`
	Document  *CloudMedia `json:"document,omitempty"`
}

type CloudText struct {
	Body string `json:"body"`
}

type CloudMedia struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

// ContactName returns the profile name the payload carries for waID.
func (v CloudValue) ContactName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}

// WhatsAppCloud normalizes one webhook message. Replies go back to the
// sender, so ChatID equals SenderID.
func WhatsAppCloud(m CloudMessage, senderName string) (domain.InboundMessage, error) {
	if m.From == "" {
		return domain.InboundMessage{}, malformed("whatsapp", "no sender")
	}

	var at time.Time
	if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && sec > 0 {
		at = time.Unix(sec, 0)
	}

	var text string
	var att *domain.AttachmentRef
	switch m.Type {
	case "text":
		if m.Text != nil {
			text = m.Text.Body
		}
	case "image":
		att, text = cloudMedia(domain.AttachmentImage, m.Image)
	case "audio":
		att, text = cloudMedia(domain.AttachmentAudio, m.Audio)
	case "video":
		att, text = cloudMedia(domain.AttachmentVideo, m.Video)
	case "document":
		if m.Document != nil {
			att, text = cloudMedia(kindForMIME(m.Document.MIMEType), m.Document)
		}
	}

	msg := newMessage("whatsapp", m.From, m.From, senderName, text, at)
	msg.Attachment = att
	return msg, nil
}

func cloudMedia(kind domain.AttachmentKind, media *CloudMedia) (*domain.AttachmentRef, string) {
	if media == nil || media.ID == "" {
		return nil, ""
	}
	return &domain.AttachmentRef{Kind: kind, Locator: media.ID, MIMEType: media.MIMEType}, media.Caption
}
