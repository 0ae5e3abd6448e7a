package inbound

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"korabot/internal/domain"
)

// Telegram normalizes a Bot API message. The sender is From, or the chat
// itself for channel posts.
func Telegram(m *tgbotapi.Message) (domain.InboundMessage, error) {
	if m == nil {
		return domain.InboundMessage{}, malformed("telegram", "nil message")
	}

	var senderID, senderName string
	switch {
	case m.From != nil && m.From.ID != 0:
		senderID = strconv.FormatInt(m.From.ID, 10)
		senderName = m.From.FirstName
		if senderName == "" {
			senderName = m.From.UserName
		}
	case m.Chat != nil && m.Chat.ID != 0:
		senderID = strconv.FormatInt(m.Chat.ID, 10)
		senderName = m.Chat.Title
	default:
		return domain.InboundMessage{}, malformed("telegram", "no sender")
	}

	chatID := senderID
	if m.Chat != nil && m.Chat.ID != 0 {
		chatID = strconv.FormatInt(m.Chat.ID, 10)
	}

	var at time.Time
	if m.Date > 0 {
		at = time.Unix(int64(m.Date), 0)
	}

	text := m.Text
	att := telegramAttachment(m)
	if att != nil {
		text = m.Caption
	}

	msg := newMessage("telegram", chatID, senderID, senderName, text, at)
	msg.Attachment = att
	return msg, nil
}

func telegramAttachment(m *tgbotapi.Message) *domain.AttachmentRef {
	switch {
	case len(m.Photo) > 0:
		p := pickTelegramPhoto(m.Photo)
		return &domain.AttachmentRef{Kind: domain.AttachmentImage, Locator: p.FileID, MIMEType: "image/jpeg"}
	case m.Document != nil:
		return &domain.AttachmentRef{Kind: kindForMIME(m.Document.MimeType), Locator: m.Document.FileID, MIMEType: m.Document.MimeType}
	case m.Audio != nil:
		return &domain.AttachmentRef{Kind: domain.AttachmentAudio, Locator: m.Audio.FileID, MIMEType: m.Audio.MimeType}
	case m.Voice != nil:
		return &domain.AttachmentRef{Kind: domain.AttachmentAudio, Locator: m.Voice.FileID, MIMEType: m.Voice.MimeType}
	case m.Video != nil:
		return &domain.AttachmentRef{Kind: domain.AttachmentVideo, Locator: m.Video.FileID, MIMEType: m.Video.MimeType}
	}
	return nil
}

// pickTelegramPhoto returns the rendition with the most pixels. FileSize
// only breaks ties since Telegram often leaves it zero.
func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		area, bestArea := item.Width*item.Height, best.Width*best.Height
		if area > bestArea || (area == bestArea && item.FileSize > best.FileSize) {
			best = item
		}
	}
	return best
}
