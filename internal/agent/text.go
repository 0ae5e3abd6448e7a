package agent

import (
	"context"
	"log/slog"
	"time"

	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/metrics"
)

// TextHandler answers plain text with the text model, using the sender's
// recent history as context.
type TextHandler struct {
	provider domain.Provider
	history  domain.HistoryStore
	prompt   *PromptBuilder
	model    config.ModelConfig
	logger   *slog.Logger
}

type TextHandlerConfig struct {
	Provider domain.Provider
	History  domain.HistoryStore
	Prompt   *PromptBuilder
	Model    config.ModelConfig
	Logger   *slog.Logger
}

func NewTextHandler(cfg TextHandlerConfig) *TextHandler {
	if cfg.Prompt == nil {
		cfg.Prompt = NewPromptBuilder(config.DefaultSystemPrompt)
	}
	return &TextHandler{
		provider: cfg.Provider,
		history:  cfg.History,
		prompt:   cfg.Prompt,
		model:    cfg.Model,
		logger:   cfg.Logger,
	}
}

func (h *TextHandler) Handle(ctx context.Context, msg domain.InboundMessage) (domain.Reply, error) {
	var history []string
	if h.history != nil {
		recent, err := h.history.Recent(ctx, msg.SenderID)
		if err != nil {
			h.logger.Warn("failed to load history, continuing without it", "sender", msg.SenderID, "err", err)
		} else {
			history = recent
		}
	}

	req := domain.ChatRequest{
		Messages:    h.prompt.BuildMessages(history, msg.Text),
		Model:       h.model.Model,
		MaxTokens:   h.model.MaxTokens,
		Temperature: h.model.Temperature,
		TopP:        h.model.TopP,
	}

	start := time.Now()
	resp, err := h.provider.Chat(ctx, req)
	metrics.AILatency("text").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Reply{}, &domain.CollaboratorError{Collaborator: domain.CollaboratorAI, Op: "generate", Err: err}
	}

	h.logger.Debug("text reply generated",
		"sender", msg.SenderID,
		"history", len(history),
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)
	return domain.TextReply(resp.Content), nil
}
