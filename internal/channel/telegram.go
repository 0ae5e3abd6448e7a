package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/inbound"
	"korabot/internal/metrics"
)

// telegramPollSeconds is the getUpdates long-poll window.
const telegramPollSeconds = 30

// Telegram implements domain.Channel and domain.MediaFetcher for the
// Telegram Bot API using long polling.
type Telegram struct {
	token        string
	apiEndpoint  string
	fileEndpoint string
	timeout      time.Duration

	bot    *tgbotapi.BotAPI
	client *http.Client
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramChannelConfig struct {
	Config config.TelegramConfig
	Logger *slog.Logger

	// Endpoints default to the public Bot API. Format strings take the
	// token then the method or file path.
	APIEndpoint  string
	FileEndpoint string
}

func NewTelegram(cfg TelegramChannelConfig) *Telegram {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	timeout := timeoutOrDefault(cfg.Config.TimeoutSeconds)
	return &Telegram{
		token:        cfg.Config.Token,
		apiEndpoint:  cfg.APIEndpoint,
		fileEndpoint: cfg.FileEndpoint,
		timeout:      timeout,
		client:       &http.Client{Timeout: timeout},
		logger:       cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect validates the token with getMe. Start calls it when needed; serve
// calls it up front so a bad token fails at startup.
func (t *Telegram) Connect() error {
	if t.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.apiEndpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// Username returns the bot's @name once connected.
func (t *Telegram) Username() string {
	if t.bot == nil {
		return ""
	}
	return t.bot.Self.UserName
}

// Start begins polling for updates and blocks until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.Connect(); err != nil {
		return err
	}
	t.bus = bus

	bus.OnOutbound(t.Name(), func(msg domain.OutboundMessage) error {
		sendCtx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		return t.Send(sendCtx, msg.ChatID, msg.Reply)
	})

	// The long poll outlives the send timeout, so it gets its own client.
	poller := *t.bot
	poller.Client = &http.Client{Timeout: (telegramPollSeconds + 10) * time.Second}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollSeconds
	updates := poller.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			poller.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	m := update.Message
	if m == nil {
		m = update.ChannelPost
	}
	if m == nil {
		return
	}

	msg, err := inbound.Telegram(m)
	if err != nil {
		t.logger.Warn("telegram update dropped", "update_id", update.UpdateID, "err", err)
		metrics.DroppedTotal(t.Name(), "malformed").Inc()
		return
	}

	t.logger.Info("telegram message received",
		"trace", msg.ID,
		"chat_id", msg.ChatID,
		"text_len", len(msg.Text),
		"attachment", msg.Attachment != nil,
	)
	metrics.InboundTotal(t.Name()).Inc()

	if chatID, err := strconv.ParseInt(msg.ChatID, 10, 64); err == nil {
		_, _ = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	}

	publish(t.bus, t.logger, msg)
}

// Send delivers reply as plain text, split into MaxMessageRunes pieces in
// order. The first failing piece aborts the rest. A media URL is sent as a
// photo after the text.
func (t *Telegram) Send(ctx context.Context, chatID string, reply domain.Reply) error {
	if t.bot == nil {
		return platformError("send", fmt.Errorf("telegram not connected"))
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return platformError("send", fmt.Errorf("invalid chat ID %q: %w", chatID, err))
	}

	chunks := SplitMessage(reply.Body, MaxMessageRunes)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return platformError("send", err)
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return platformError("send", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err))
		}
		metrics.ChunksSent(t.Name()).Inc()
	}

	if reply.Media != nil && reply.Media.URL != "" {
		if _, err := t.bot.Send(tgbotapi.NewPhoto(id, tgbotapi.FileURL(reply.Media.URL))); err != nil {
			return platformError("send_photo", err)
		}
	}
	return nil
}

// FetchMedia resolves a Telegram file id with getFile and downloads it.
func (t *Telegram) FetchMedia(ctx context.Context, ref domain.AttachmentRef) ([]byte, string, error) {
	if t.bot == nil {
		return nil, "", fmt.Errorf("telegram not connected")
	}
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: ref.Locator})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	url := fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath)
	return downloadMedia(ctx, t.client, url, nil, ref.MIMEType)
}

func platformError(op string, err error) error {
	return &domain.CollaboratorError{Collaborator: domain.CollaboratorPlatform, Op: op, Err: err}
}
