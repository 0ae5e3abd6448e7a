package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"korabot/internal/domain"
	"korabot/internal/metrics"
)

// Route kinds.
const (
	RouteCommand      = "command"
	RouteAttachment   = "attachment"
	RouteText         = "text"
	RouteUnrecognized = "unrecognized"
	RouteOtherBot     = "other_bot"
)

// Fixed replies for handler failures.
const (
	TextFailureReply     = "😔 Sorry, I encountered an error processing your message."
	UploadFailureReply   = "🚨 Error processing the image. Please try again later."
	AnalysisFailureReply = "🚨 Error analyzing the image. Please try again later."
	GenericFailureReply  = "😔 Sorry, something went wrong. Please try again later."
	RateLimitedReply     = "⏳ You are sending messages too quickly. Please wait a moment and try again."
)

// Handler produces a reply for one message.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (domain.Reply, error)
}

// RouterConfig holds the Router's collaborators.
type RouterConfig struct {
	Prefix      string
	BotUsername string
	Commands    *Commands
	Text        Handler
	Attachment  Handler
	History     domain.HistoryStore
	Logger      *slog.Logger
}

// Router classifies a message and dispatches it to exactly one handler.
type Router struct {
	prefix      string
	botUsername string
	commands    *Commands
	text        Handler
	attachment  Handler
	history     domain.HistoryStore
	logger      *slog.Logger
	now         func() time.Time
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "/"
	}
	if cfg.Commands == nil {
		cfg.Commands = NewCommands(CommandsConfig{Prefix: cfg.Prefix, History: cfg.History})
	}
	return &Router{
		prefix:      cfg.Prefix,
		botUsername: cfg.BotUsername,
		commands:    cfg.Commands,
		text:        cfg.Text,
		attachment:  cfg.Attachment,
		history:     cfg.History,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Classify returns the route kind for msg. For commands it also returns the
// parsed invocation. A command with an @suffix naming a different bot is
// RouteOtherBot.
func (r *Router) Classify(msg domain.InboundMessage) (string, Invocation) {
	if msg.HasText() && strings.HasPrefix(strings.TrimSpace(msg.Text), r.prefix) {
		name, arg, ok := ParseCommand(msg.Text, r.prefix, r.botUsername)
		if !ok {
			return RouteOtherBot, Invocation{}
		}
		return RouteCommand, Invocation{Name: name, Argument: arg, Message: msg}
	}
	if msg.Attachment != nil {
		return RouteAttachment, Invocation{}
	}
	if msg.HasText() {
		return RouteText, Invocation{}
	}
	return RouteUnrecognized, Invocation{}
}

// UnrecognizedReply is sent for messages with neither usable text nor a
// supported attachment.
func (r *Router) UnrecognizedReply() string {
	return fmt.Sprintf("🤔 Sorry, I could not understand that message. Type %shelp to see what I can do.", r.prefix)
}

// Route handles msg and always produces a reply. Handler errors and panics
// become fixed apologies; details only reach the log.
func (r *Router) Route(ctx context.Context, msg domain.InboundMessage) domain.Reply {
	kind, inv := r.Classify(msg)
	metrics.RoutesTotal(kind).Inc()

	log := r.logger.With("trace", msg.ID, "channel", msg.Channel, "sender", msg.SenderID, "route", kind)
	log.Debug("routing message")

	switch kind {
	case RouteUnrecognized:
		return domain.TextReply(r.UnrecognizedReply())
	case RouteOtherBot:
		// Group chats carry commands for every bot; stay quiet for those.
		r.remember(ctx, log, msg)
		return domain.Reply{}
	}

	reply, err := r.dispatch(ctx, kind, inv, msg)

	if (kind == RouteCommand || kind == RouteText) && msg.HasText() {
		r.remember(ctx, log, msg)
	}

	if err != nil {
		var ce *domain.CollaboratorError
		if errors.As(err, &ce) {
			metrics.CollaboratorErrors(ce.Collaborator, ce.Op).Inc()
		}
		log.Error("handler failed", "err", err)
		return domain.TextReply(apologyFor(kind, err))
	}
	return reply
}

// Throttled answers a message the rate limiter rejected. Nothing is
// dispatched but text is still written to history.
func (r *Router) Throttled(ctx context.Context, msg domain.InboundMessage) domain.Reply {
	metrics.RoutesTotal("rate_limited").Inc()
	if msg.HasText() {
		r.remember(ctx, r.logger.With("trace", msg.ID, "channel", msg.Channel, "sender", msg.SenderID), msg)
	}
	return domain.TextReply(RateLimitedReply)
}

func (r *Router) dispatch(ctx context.Context, kind string, inv Invocation, msg domain.InboundMessage) (reply domain.Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s handler: %v", kind, p)
		}
	}()

	switch kind {
	case RouteCommand:
		return r.commands.Execute(ctx, inv)
	case RouteAttachment:
		if r.attachment == nil {
			return domain.TextReply(UnsupportedAttachmentReply), nil
		}
		return r.attachment.Handle(ctx, msg)
	default:
		if r.text == nil {
			return domain.Reply{}, errors.New("no text handler configured")
		}
		return r.text.Handle(ctx, msg)
	}
}

func (r *Router) remember(ctx context.Context, log *slog.Logger, msg domain.InboundMessage) {
	if r.history == nil {
		return
	}
	at := msg.ReceivedAt
	if at.IsZero() {
		at = r.now()
	}
	if err := r.history.Append(ctx, msg.SenderID, msg.Text, at); err != nil {
		log.Warn("history append failed", "err", err)
		return
	}
	metrics.HistoryWrites.Inc()
}

// apologyFor maps a handler error to the reply the user sees.
func apologyFor(kind string, err error) string {
	var ce *domain.CollaboratorError
	if errors.As(err, &ce) {
		switch {
		case ce.Collaborator == domain.CollaboratorAI && ce.Op == "analyze":
			return AnalysisFailureReply
		case ce.Collaborator == domain.CollaboratorAI:
			return TextFailureReply
		case ce.Collaborator == domain.CollaboratorImageHost:
			return UploadFailureReply
		}
	}
	if kind == RouteText {
		return TextFailureReply
	}
	return GenericFailureReply
}
