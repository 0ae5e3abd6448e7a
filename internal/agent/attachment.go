package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/metrics"
)

// AttachmentHandler analyzes inbound images: fetch from the platform,
// re-host, then describe with the image model.
type AttachmentHandler struct {
	fetchers  map[string]domain.MediaFetcher // by channel name
	host      domain.ImageHost
	provider  domain.Provider
	model     config.ModelConfig
	prompt    string
	echoMedia bool
	logger    *slog.Logger
}

type AttachmentHandlerConfig struct {
	Fetchers  map[string]domain.MediaFetcher
	Host      domain.ImageHost // nil disables re-hosting
	Provider  domain.Provider
	Model     config.ModelConfig
	Prompt    string
	EchoMedia bool
	Logger    *slog.Logger
}

func NewAttachmentHandler(cfg AttachmentHandlerConfig) *AttachmentHandler {
	if cfg.Prompt == "" {
		cfg.Prompt = config.DefaultAnalysisPrompt
	}
	if cfg.Fetchers == nil {
		cfg.Fetchers = make(map[string]domain.MediaFetcher)
	}
	return &AttachmentHandler{
		fetchers:  cfg.Fetchers,
		host:      cfg.Host,
		provider:  cfg.Provider,
		model:     cfg.Model,
		prompt:    cfg.Prompt,
		echoMedia: cfg.EchoMedia && cfg.Host != nil,
		logger:    cfg.Logger,
	}
}

// UnsupportedAttachmentReply is sent for any attachment that is not an image.
const UnsupportedAttachmentReply = "🚫 Unsupported attachment type. Please send an image."

func (h *AttachmentHandler) Handle(ctx context.Context, msg domain.InboundMessage) (domain.Reply, error) {
	att := msg.Attachment
	if att == nil || att.Kind != domain.AttachmentImage {
		return domain.TextReply(UnsupportedAttachmentReply), nil
	}

	fetcher, ok := h.fetchers[msg.Channel]
	if !ok {
		return domain.Reply{}, &domain.CollaboratorError{
			Collaborator: domain.CollaboratorImageHost, Op: "fetch",
			Err: fmt.Errorf("no media fetcher for channel %s", msg.Channel),
		}
	}
	data, mime, err := fetcher.FetchMedia(ctx, *att)
	if err != nil {
		return domain.Reply{}, &domain.CollaboratorError{Collaborator: domain.CollaboratorImageHost, Op: "fetch", Err: err}
	}
	if mime == "" {
		mime = att.MIMEType
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}

	var url string
	if h.host != nil {
		url, err = h.host.Upload(ctx, data, "attachment.jpg")
		if err != nil {
			return domain.Reply{}, &domain.CollaboratorError{Collaborator: domain.CollaboratorImageHost, Op: "upload", Err: err}
		}
	}

	start := time.Now()
	resp, err := h.provider.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{{
			Role:    "user",
			Content: h.prompt,
			Images:  []domain.Image{{Data: data, MIMEType: mime}},
		}},
		Model:       h.model.Model,
		MaxTokens:   h.model.MaxTokens,
		Temperature: h.model.Temperature,
		TopP:        h.model.TopP,
	})
	metrics.AILatency("image").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Reply{}, &domain.CollaboratorError{Collaborator: domain.CollaboratorAI, Op: "analyze", Err: err}
	}

	h.logger.Info("image analyzed", "sender", msg.SenderID, "bytes", len(data), "hosted", url != "")

	body := "🖼️ Image Analysis:\n" + resp.Content
	if url != "" {
		body += "\n\n🔗 View Image: " + url
	}
	reply := domain.TextReply(body)
	if h.echoMedia && url != "" {
		reply.Media = &domain.MediaReply{Kind: domain.AttachmentImage, URL: url}
	}
	return reply, nil
}
