package channel

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"korabot/internal/config"
	"korabot/internal/domain"
)

func linkedEvent(id string, fromMe bool, m *waE2E.Message) *events.Message {
	jid := types.NewJID("15550002222", types.DefaultUserServer)
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: jid, Sender: jid, IsFromMe: fromMe},
			ID:            types.MessageID(id),
			Timestamp:     time.Now(),
		},
		Message: m,
	}
}

func newTestWhatsMeow() (*WhatsMeow, *captureBus) {
	w := NewWhatsMeow(WhatsMeowChannelConfig{Config: config.WhatsMeowConfig{}, Logger: quietLogger()})
	b := &captureBus{}
	w.bus = b
	return w, b
}

func TestWhatsMeow_EventPublishesAndCachesMedia(t *testing.T) {
	w, b := newTestWhatsMeow()

	w.handleEvent(linkedEvent("M1", false, &waE2E.Message{Conversation: proto.String("hi")}))
	w.handleEvent(linkedEvent("M2", false, &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}}))

	msgs := b.Messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d, want 2", len(msgs))
	}
	if msgs[0].Text != "hi" || msgs[0].ChatID != "15550002222@s.whatsapp.net" {
		t.Errorf("text message = %+v", msgs[0])
	}
	if w.media.Len() != 1 {
		t.Errorf("cached media = %d, want 1", w.media.Len())
	}
}

func TestWhatsMeow_IgnoresOwnMessages(t *testing.T) {
	w, b := newTestWhatsMeow()
	w.handleEvent(linkedEvent("M1", true, &waE2E.Message{Conversation: proto.String("echo")}))
	if len(b.Messages()) != 0 {
		t.Error("own messages must not be published")
	}
}

func TestWhatsMeow_FetchUnknownMedia(t *testing.T) {
	w, _ := newTestWhatsMeow()
	_, _, err := w.FetchMedia(context.Background(), domain.AttachmentRef{Locator: "nope"})
	if err == nil {
		t.Fatal("expected error for unknown media")
	}
}

func TestWhatsMeow_SendWithoutClient(t *testing.T) {
	w, _ := newTestWhatsMeow()
	if err := w.Send(context.Background(), "15550002222@s.whatsapp.net", domain.TextReply("hi")); err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestMediaCache_Expiry(t *testing.T) {
	c := newMediaCache(time.Minute)
	now := time.Now()
	img := &waE2E.ImageMessage{}

	c.put("a", img, now)
	if _, ok := c.take("a", now.Add(30*time.Second)); !ok {
		t.Fatal("fresh entry should be returned")
	}
	if _, ok := c.take("a", now); ok {
		t.Fatal("entries are single use")
	}

	c.put("old", img, now)
	if _, ok := c.take("old", now.Add(2*time.Minute)); ok {
		t.Fatal("expired entry returned")
	}

	c.put("x", img, now)
	c.put("y", img, now.Add(2*time.Minute))
	if c.Len() != 1 {
		t.Errorf("put should prune expired entries, len = %d", c.Len())
	}
}
