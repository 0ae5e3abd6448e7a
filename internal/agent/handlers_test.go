package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korabot/internal/config"
	"korabot/internal/domain"
)

func imageMsg(channel string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:    channel,
		SenderID:   "u1",
		Attachment: &domain.AttachmentRef{Kind: domain.AttachmentImage, Locator: "file-1", MIMEType: "image/jpeg"},
	}
}

func newAttachment(fetch *fakeFetcher, host domain.ImageHost, p *fakeProvider, echo bool) *AttachmentHandler {
	return NewAttachmentHandler(AttachmentHandlerConfig{
		Fetchers:  map[string]domain.MediaFetcher{"telegram": fetch},
		Host:      host,
		Provider:  p,
		Model:     config.ModelConfig{Model: "gemini-1.5-pro", MaxTokens: 8192},
		EchoMedia: echo,
		Logger:    quietLogger(),
	})
}

func TestAttachment_HappyPath(t *testing.T) {
	p := &fakeProvider{reply: "A cat on a sofa."}
	host := &fakeHost{url: "https://i.im.ge/x.jpg"}
	h := newAttachment(&fakeFetcher{data: []byte("jpeg")}, host, p, false)

	reply, err := h.Handle(context.Background(), imageMsg("telegram"))
	require.NoError(t, err)
	assert.Equal(t, "🖼️ Image Analysis:\nA cat on a sofa.\n\n🔗 View Image: https://i.im.ge/x.jpg", reply.Body)
	assert.Nil(t, reply.Media)

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gemini-1.5-pro", calls[0].Model)
	msg := calls[0].Messages[0]
	assert.Equal(t, config.DefaultAnalysisPrompt, msg.Content)
	require.Len(t, msg.Images, 1)
	assert.Equal(t, []byte("jpeg"), msg.Images[0].Data)
	assert.Equal(t, "image/jpeg", msg.Images[0].MIMEType)
}

func TestAttachment_EchoMedia(t *testing.T) {
	h := newAttachment(&fakeFetcher{data: []byte("jpeg")}, &fakeHost{url: "https://i.im.ge/x.jpg"}, &fakeProvider{reply: "ok"}, true)
	reply, err := h.Handle(context.Background(), imageMsg("telegram"))
	require.NoError(t, err)
	require.NotNil(t, reply.Media)
	assert.Equal(t, "https://i.im.ge/x.jpg", reply.Media.URL)
}

func TestAttachment_NoHostOmitsLink(t *testing.T) {
	h := newAttachment(&fakeFetcher{data: []byte("jpeg")}, nil, &fakeProvider{reply: "desc"}, true)
	reply, err := h.Handle(context.Background(), imageMsg("telegram"))
	require.NoError(t, err)
	assert.Equal(t, "🖼️ Image Analysis:\ndesc", reply.Body)
	assert.Nil(t, reply.Media)
}

func TestAttachment_Unsupported(t *testing.T) {
	p := &fakeProvider{}
	h := newAttachment(&fakeFetcher{}, &fakeHost{}, p, false)
	msg := imageMsg("telegram")
	msg.Attachment.Kind = domain.AttachmentAudio

	reply, err := h.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, UnsupportedAttachmentReply, reply.Body)
	assert.Empty(t, p.Calls())
}

func TestAttachment_ErrorKinds(t *testing.T) {
	ctx := context.Background()

	_, err := newAttachment(&fakeFetcher{err: errBoom}, &fakeHost{}, &fakeProvider{}, false).Handle(ctx, imageMsg("telegram"))
	var ce *domain.CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CollaboratorImageHost, ce.Collaborator)
	assert.Equal(t, "fetch", ce.Op)

	_, err = newAttachment(&fakeFetcher{data: []byte("x")}, &fakeHost{err: errBoom}, &fakeProvider{}, false).Handle(ctx, imageMsg("telegram"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "upload", ce.Op)

	_, err = newAttachment(&fakeFetcher{data: []byte("x")}, &fakeHost{url: "u"}, &fakeProvider{err: errBoom}, false).Handle(ctx, imageMsg("telegram"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CollaboratorAI, ce.Collaborator)
	assert.Equal(t, "analyze", ce.Op)

	_, err = newAttachment(&fakeFetcher{}, nil, &fakeProvider{}, false).Handle(ctx, imageMsg("whatsapp"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fetch", ce.Op)
}

func TestTextHandler_UsesModelSettings(t *testing.T) {
	p := &fakeProvider{reply: "verbatim *reply*"}
	h := NewTextHandler(TextHandlerConfig{
		Provider: p,
		Model:    config.ModelConfig{Model: "gemini-1.5-flash", Temperature: 0.3, TopP: 0.95, MaxTokens: 8192},
		Logger:   quietLogger(),
	})
	reply, err := h.Handle(context.Background(), textMsg("hi"))
	require.NoError(t, err)
	assert.Equal(t, "verbatim *reply*", reply.Body)

	req := p.Calls()[0]
	assert.Equal(t, "gemini-1.5-flash", req.Model)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.InDelta(t, 0.95, req.TopP, 1e-9)
	assert.Equal(t, 8192, req.MaxTokens)
	assert.Equal(t, config.DefaultSystemPrompt, req.Messages[0].Content)
}

func TestTextHandler_ProviderError(t *testing.T) {
	h := NewTextHandler(TextHandlerConfig{Provider: &fakeProvider{err: errBoom}, Logger: quietLogger()})
	_, err := h.Handle(context.Background(), textMsg("hi"))
	var ce *domain.CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CollaboratorAI, ce.Collaborator)
	assert.ErrorIs(t, err, errBoom)
}

func TestPromptBuilder_SkipsBlankHistory(t *testing.T) {
	msgs := NewPromptBuilder("sys").BuildMessages([]string{"a", "  ", "b"}, "now")
	require.Len(t, msgs, 4)
	assert.Equal(t, "a", msgs[1].Content)
	assert.Equal(t, "b", msgs[2].Content)
	assert.Equal(t, "now", msgs[3].Content)

	bare := NewPromptBuilder("").BuildMessages(nil, "x")
	require.Len(t, bare, 1)
	assert.Equal(t, "user", bare[0].Role)
}
