package inbound

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"korabot/internal/domain"
)

func TestTelegram_Text(t *testing.T) {
	msg, err := Telegram(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, FirstName: "Ada", UserName: "ada"},
		Chat: &tgbotapi.Chat{ID: -100},
		Date: 1700000000,
		Text: "hello there",
	})
	require.NoError(t, err)
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "42", msg.SenderID)
	assert.Equal(t, "-100", msg.ChatID)
	assert.Equal(t, "Ada", msg.SenderName)
	assert.Equal(t, "hello there", msg.Text)
	assert.Nil(t, msg.Attachment)
	assert.Equal(t, time.Unix(1700000000, 0), msg.ReceivedAt)
	assert.NotEmpty(t, msg.ID)
}

func TestTelegram_PhotoPicksLargestAndUsesCaption(t *testing.T) {
	msg, err := Telegram(&tgbotapi.Message{
		From:    &tgbotapi.User{ID: 1},
		Chat:    &tgbotapi.Chat{ID: 1},
		Caption: "what is this",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90, FileSize: 1000},
			{FileID: "large", Width: 1280, Height: 960, FileSize: 90000},
			{FileID: "medium", Width: 320, Height: 240, FileSize: 9000},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, domain.AttachmentImage, msg.Attachment.Kind)
	assert.Equal(t, "large", msg.Attachment.Locator)
	assert.Equal(t, "what is this", msg.Text)
}

func TestPickTelegramPhoto_AreaBeatsFileSize(t *testing.T) {
	cases := []struct {
		name  string
		sizes []tgbotapi.PhotoSize
		want  string
	}{
		{"larger rendition without size", []tgbotapi.PhotoSize{
			{FileID: "large", Width: 1280, Height: 960},
			{FileID: "thumb", Width: 90, Height: 90, FileSize: 1000},
		}, "large"},
		{"order independent", []tgbotapi.PhotoSize{
			{FileID: "thumb", Width: 90, Height: 90, FileSize: 1000},
			{FileID: "large", Width: 1280, Height: 960},
		}, "large"},
		{"equal area prefers bigger file", []tgbotapi.PhotoSize{
			{FileID: "a", Width: 640, Height: 480, FileSize: 100},
			{FileID: "b", Width: 480, Height: 640, FileSize: 200},
		}, "b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pickTelegramPhoto(tc.sizes).FileID)
		})
	}
}

func TestTelegram_DocumentKindFromMIME(t *testing.T) {
	img, err := Telegram(&tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1},
		Document: &tgbotapi.Document{FileID: "f1", MimeType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentImage, img.Attachment.Kind)

	pdf, err := Telegram(&tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1},
		Document: &tgbotapi.Document{FileID: "f2", MimeType: "application/pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentDocument, pdf.Attachment.Kind)
	assert.Equal(t, "1", pdf.ChatID)
}

func TestTelegram_StickerIsEmpty(t *testing.T) {
	msg, err := Telegram(&tgbotapi.Message{
		From:    &tgbotapi.User{ID: 1},
		Chat:    &tgbotapi.Chat{ID: 1},
		Sticker: &tgbotapi.Sticker{FileID: "s"},
	})
	require.NoError(t, err)
	assert.False(t, msg.HasText())
	assert.Nil(t, msg.Attachment)
}

func TestTelegram_ChannelPostFallsBackToChat(t *testing.T) {
	msg, err := Telegram(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 77, Title: "news"}, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "77", msg.SenderID)
}

func TestTelegram_NoSender(t *testing.T) {
	_, err := Telegram(&tgbotapi.Message{Text: "x"})
	var mp *domain.MalformedPayloadError
	require.True(t, errors.As(err, &mp))
	assert.Equal(t, "telegram", mp.Channel)

	_, err = Telegram(nil)
	assert.Error(t, err)
}

const cloudFixture = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "15551234567", "profile": {"name": "Grace"}}],
        "messages": [
          {"from": "15551234567", "id": "m1", "timestamp": "1700000000", "type": "text", "text": {"body": "/uptime"}},
          {"from": "15551234567", "id": "m2", "timestamp": "1700000001", "type": "image", "image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "look"}},
          {"from": "15551234567", "id": "m3", "timestamp": "1700000002", "type": "location"}
        ]
      }
    }]
  }]
}`

func TestWhatsAppCloud_Fixture(t *testing.T) {
	var p CloudPayload
	require.NoError(t, json.Unmarshal([]byte(cloudFixture), &p))
	value := p.Entry[0].Changes[0].Value
	require.Len(t, value.Messages, 3)

	name := value.ContactName("15551234567")
	assert.Equal(t, "Grace", name)

	text, err := WhatsAppCloud(value.Messages[0], name)
	require.NoError(t, err)
	assert.Equal(t, "/uptime", text.Text)
	assert.Equal(t, text.SenderID, text.ChatID)
	assert.Equal(t, "Grace", text.SenderName)
	assert.Equal(t, time.Unix(1700000000, 0), text.ReceivedAt)

	img, err := WhatsAppCloud(value.Messages[1], name)
	require.NoError(t, err)
	require.NotNil(t, img.Attachment)
	assert.Equal(t, "media-1", img.Attachment.Locator)
	assert.Equal(t, "look", img.Text)

	loc, err := WhatsAppCloud(value.Messages[2], name)
	require.NoError(t, err)
	assert.False(t, loc.HasText())
	assert.Nil(t, loc.Attachment)
}

func TestWhatsAppCloud_NoSender(t *testing.T) {
	_, err := WhatsAppCloud(CloudMessage{Type: "text", Text: &CloudText{Body: "hi"}}, "")
	var mp *domain.MalformedPayloadError
	assert.ErrorAs(t, err, &mp)
}

func wmEvent(m *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("15550001111", types.DefaultUserServer),
				Sender: types.NewJID("15550001111", types.DefaultUserServer),
			},
			ID:        "ABC123",
			PushName:  "Linus",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: m,
	}
}

func TestWhatsMeow_Text(t *testing.T) {
	msg, err := WhatsMeow(wmEvent(&waE2E.Message{Conversation: proto.String("hello")}))
	require.NoError(t, err)
	assert.Equal(t, "whatsmeow", msg.Channel)
	assert.Equal(t, "15550001111", msg.SenderID)
	assert.Equal(t, "15550001111@s.whatsapp.net", msg.ChatID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "Linus", msg.SenderName)

	ext, err := WhatsMeow(wmEvent(&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted")}}))
	require.NoError(t, err)
	assert.Equal(t, "quoted", ext.Text)
}

func TestWhatsMeow_Image(t *testing.T) {
	msg, err := WhatsMeow(wmEvent(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:  proto.String("pic"),
		Mimetype: proto.String("image/jpeg"),
	}}))
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "ABC123", msg.Attachment.Locator)
	assert.Equal(t, domain.AttachmentImage, msg.Attachment.Kind)
	assert.Equal(t, "pic", msg.Text)
}

func TestWhatsMeow_NoSender(t *testing.T) {
	_, err := WhatsMeow(&events.Message{})
	var mp *domain.MalformedPayloadError
	assert.ErrorAs(t, err, &mp)
}
