package inbound

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"korabot/internal/domain"
)

// WhatsMeow normalizes a linked-device message event. The locator is the
// message id; the transport holds on to the downloadable payload.
func WhatsMeow(evt *events.Message) (domain.InboundMessage, error) {
	if evt == nil || evt.Info.Sender.User == "" {
		return domain.InboundMessage{}, malformed("whatsmeow", "no sender")
	}

	text, att := whatsmeowContent(evt.Message, string(evt.Info.ID))
	msg := newMessage("whatsmeow", evt.Info.Chat.String(), evt.Info.Sender.User, evt.Info.PushName, text, evt.Info.Timestamp)
	msg.Attachment = att
	return msg, nil
}

func whatsmeowContent(m *waE2E.Message, id string) (string, *domain.AttachmentRef) {
	if m == nil {
		return "", nil
	}
	if text := m.GetConversation(); text != "" {
		return text, nil
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText(), nil
	}
	if img := m.GetImageMessage(); img != nil {
		return img.GetCaption(), &domain.AttachmentRef{Kind: domain.AttachmentImage, Locator: id, MIMEType: img.GetMimetype()}
	}
	if vid := m.GetVideoMessage(); vid != nil {
		return vid.GetCaption(), &domain.AttachmentRef{Kind: domain.AttachmentVideo, Locator: id, MIMEType: vid.GetMimetype()}
	}
	if aud := m.GetAudioMessage(); aud != nil {
		return "", &domain.AttachmentRef{Kind: domain.AttachmentAudio, Locator: id, MIMEType: aud.GetMimetype()}
	}
	if doc := m.GetDocumentMessage(); doc != nil {
		return doc.GetCaption(), &domain.AttachmentRef{Kind: kindForMIME(doc.GetMimetype()), Locator: id, MIMEType: doc.GetMimetype()}
	}
	return "", nil
}
