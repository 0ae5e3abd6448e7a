package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korabot/internal/domain"
)

type routerFixture struct {
	router     *Router
	provider   *fakeProvider
	history    *fakeHistory
	attachment *recordingHandler
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		provider:   &fakeProvider{reply: "model says hi"},
		history:    &fakeHistory{},
		attachment: &recordingHandler{reply: domain.TextReply("analyzed")},
	}
	text := NewTextHandler(TextHandlerConfig{
		Provider: f.provider,
		History:  f.history,
		Prompt:   NewPromptBuilder("KORA AI"),
		Logger:   quietLogger(),
	})
	f.router = NewRouter(RouterConfig{
		Prefix:      "/",
		BotUsername: "KoraBot",
		Text:        text,
		Attachment:  f.attachment,
		History:     f.history,
		Logger:      quietLogger(),
	})
	return f
}

func textMsg(text string) domain.InboundMessage {
	return domain.InboundMessage{
		ID: "t1", Channel: "telegram", ChatID: "c1", SenderID: "u1", SenderName: "Ada",
		Text: text, ReceivedAt: time.Now(),
	}
}

func TestRoute_Classification(t *testing.T) {
	r := newRouterFixture().router
	img := &domain.AttachmentRef{Kind: domain.AttachmentImage, Locator: "f"}

	cases := []struct {
		name string
		msg  domain.InboundMessage
		want string
	}{
		{"command", textMsg("/uptime"), RouteCommand},
		{"command with leading space", textMsg("  /help"), RouteCommand},
		{"plain text", textMsg("hello there"), RouteText},
		{"attachment only", domain.InboundMessage{SenderID: "u", Attachment: img}, RouteAttachment},
		{"caption with attachment", domain.InboundMessage{SenderID: "u", Text: "what is this", Attachment: img}, RouteAttachment},
		{"command caption wins", domain.InboundMessage{SenderID: "u", Text: "/help", Attachment: img}, RouteCommand},
		{"blank", textMsg("   "), RouteUnrecognized},
		{"other bot", textMsg("/start@SomeoneElseBot"), RouteOtherBot},
		{"own bot", textMsg("/start@korabot"), RouteCommand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, _ := r.Classify(tc.msg)
			assert.Equal(t, tc.want, kind)
		})
	}
}

func TestRoute_UptimeInvokesCommandWithEmptyArgument(t *testing.T) {
	r := newRouterFixture().router
	kind, inv := r.Classify(textMsg("/uptime"))
	require.Equal(t, RouteCommand, kind)
	assert.Equal(t, "uptime", inv.Name)
	assert.Equal(t, "", inv.Argument)

	reply := r.Route(context.Background(), textMsg("/uptime"))
	assert.Regexp(t, `^I have been running for \d+\.\d{2} seconds\.$`, reply.Body)
}

func TestRoute_TextGoesToModelWithHistory(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()
	require.NoError(t, f.history.Append(ctx, "u1", "earlier", time.Now().Add(-time.Hour)))

	reply := f.router.Route(ctx, textMsg("hello there"))
	assert.Equal(t, "model says hi", reply.Body)

	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.Message{Role: "system", Content: "KORA AI"}, msgs[0])
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "hello there", msgs[2].Content)
}

func TestRoute_HistoryAppendedOnceAfterDispatch(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	f.router.Route(ctx, textMsg("first"))
	f.router.Route(ctx, textMsg("second"))

	// The current message is not yet in history while the model is called.
	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Messages, 3)
	assert.Equal(t, "first", calls[1].Messages[1].Content)

	rows := f.history.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0].text)
	assert.Equal(t, "second", rows[1].text)
}

func TestRoute_CommandsAreRemembered(t *testing.T) {
	f := newRouterFixture()
	f.router.Route(context.Background(), textMsg("/frobnicate"))
	rows := f.history.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "/frobnicate", rows[0].text)
}

func TestRoute_CommandForOtherBotStaysQuiet(t *testing.T) {
	f := newRouterFixture()
	reply := f.router.Route(context.Background(), textMsg("/uptime@OtherBot"))
	assert.Equal(t, domain.Reply{}, reply)
	assert.Empty(t, f.provider.Calls())

	rows := f.history.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "/uptime@OtherBot", rows[0].text)
}

func TestRoute_ThrottledRemembersTextOnly(t *testing.T) {
	f := newRouterFixture()
	reply := f.router.Throttled(context.Background(), textMsg("hello"))
	assert.Equal(t, RateLimitedReply, reply.Body)
	assert.Empty(t, f.provider.Calls())
	require.Len(t, f.history.Rows(), 1)

	blank := textMsg("  ")
	f.router.Throttled(context.Background(), blank)
	assert.Len(t, f.history.Rows(), 1)
}

func TestRoute_UnknownCommandNoAICall(t *testing.T) {
	f := newRouterFixture()
	reply := f.router.Route(context.Background(), textMsg("/frobnicate"))
	assert.Equal(t, "🚫 The Command you are using does not exist, Type /help to view Available Commands.", reply.Body)
	assert.Empty(t, f.provider.Calls())
}

func TestRoute_UnrecognizedNoHistoryNoAI(t *testing.T) {
	f := newRouterFixture()
	reply := f.router.Route(context.Background(), domain.InboundMessage{SenderID: "u1", Channel: "telegram"})
	assert.Equal(t, f.router.UnrecognizedReply(), reply.Body)
	assert.Empty(t, f.history.Rows())
	assert.Empty(t, f.provider.Calls())
}

func TestRoute_AttachmentNotRemembered(t *testing.T) {
	f := newRouterFixture()
	msg := domain.InboundMessage{SenderID: "u1", Text: "caption", Attachment: &domain.AttachmentRef{Kind: domain.AttachmentImage}}
	reply := f.router.Route(context.Background(), msg)
	assert.Equal(t, "analyzed", reply.Body)
	assert.Equal(t, 1, f.attachment.Count())
	assert.Empty(t, f.history.Rows())
}

func TestRoute_AITimeoutGivesApology(t *testing.T) {
	f := newRouterFixture()
	f.provider.err = context.DeadlineExceeded

	reply := f.router.Route(context.Background(), textMsg("hello"))
	assert.Equal(t, TextFailureReply, reply.Body)
	// Remembered even though the handler failed.
	assert.Len(t, f.history.Rows(), 1)
}

func TestRoute_PanicIsContained(t *testing.T) {
	f := newRouterFixture()
	f.provider.panicky = true

	var reply domain.Reply
	require.NotPanics(t, func() {
		reply = f.router.Route(context.Background(), textMsg("hello"))
	})
	assert.Equal(t, TextFailureReply, reply.Body)
}

func TestRoute_HistoryFailureDoesNotAffectReply(t *testing.T) {
	f := newRouterFixture()
	f.history.appendErr = errBoom
	f.history.recentErr = errBoom

	reply := f.router.Route(context.Background(), textMsg("hello"))
	assert.Equal(t, "model says hi", reply.Body)
}

func TestApologyFor(t *testing.T) {
	ai := &domain.CollaboratorError{Collaborator: domain.CollaboratorAI, Op: "generate", Err: errBoom}
	analyze := &domain.CollaboratorError{Collaborator: domain.CollaboratorAI, Op: "analyze", Err: errBoom}
	upload := &domain.CollaboratorError{Collaborator: domain.CollaboratorImageHost, Op: "upload", Err: errBoom}
	fetch := &domain.CollaboratorError{Collaborator: domain.CollaboratorImageHost, Op: "fetch", Err: errBoom}

	assert.Equal(t, TextFailureReply, apologyFor(RouteText, ai))
	assert.Equal(t, AnalysisFailureReply, apologyFor(RouteAttachment, analyze))
	assert.Equal(t, UploadFailureReply, apologyFor(RouteAttachment, upload))
	assert.Equal(t, UploadFailureReply, apologyFor(RouteAttachment, fetch))
	assert.Equal(t, GenericFailureReply, apologyFor(RouteCommand, errors.New("x")))
	assert.Equal(t, UploadFailureReply, apologyFor(RouteAttachment, fmtWrap(upload)))
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("context"), err)
}
