package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/inbound"
	"korabot/internal/metrics"
)

// mediaTTL bounds how long an inbound media payload stays fetchable.
const mediaTTL = 10 * time.Minute

// OpenWhatsMeowClient opens the device store at dbPath and returns a client
// for its first device. The device is unpaired when Store.ID is nil.
func OpenWhatsMeowClient(ctx context.Context, dbPath string, logger *slog.Logger) (*whatsmeow.Client, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", slogWA{logger.With("component", "whatsmeow-db")})
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return whatsmeow.NewClient(device, slogWA{logger.With("component", "whatsmeow")}), nil
}

// WhatsMeow implements domain.Channel and domain.MediaFetcher over a
// WhatsApp linked device.
type WhatsMeow struct {
	cfg     config.WhatsMeowConfig
	timeout time.Duration
	client  *whatsmeow.Client
	media   *mediaCache
	bus     domain.MessageBus
	logger  *slog.Logger
}

type WhatsMeowChannelConfig struct {
	Config config.WhatsMeowConfig
	Logger *slog.Logger
}

func NewWhatsMeow(cfg WhatsMeowChannelConfig) *WhatsMeow {
	return &WhatsMeow{
		cfg:     cfg.Config,
		timeout: timeoutOrDefault(cfg.Config.TimeoutSeconds),
		media:   newMediaCache(mediaTTL),
		logger:  cfg.Logger,
	}
}

func (w *WhatsMeow) Name() string { return "whatsmeow" }

// Start connects the paired device and blocks until ctx is cancelled.
func (w *WhatsMeow) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus
	if w.client == nil {
		client, err := OpenWhatsMeowClient(ctx, w.cfg.DeviceDBPath, w.logger)
		if err != nil {
			return err
		}
		w.client = client
	}
	if w.client.Store.ID == nil {
		return fmt.Errorf("whatsmeow device is not paired; run `korabot whatsapp pair` first")
	}

	w.client.AddEventHandler(w.handleEvent)
	bus.OnOutbound(w.Name(), func(msg domain.OutboundMessage) error {
		sendCtx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		return w.Send(sendCtx, msg.ChatID, msg.Reply)
	})

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("whatsmeow connect: %w", err)
	}
	w.logger.Info("whatsmeow connected", "jid", w.client.Store.ID.String())

	<-ctx.Done()
	w.logger.Info("whatsmeow channel stopping")
	w.client.Disconnect()
	return nil
}

func (w *WhatsMeow) Stop() error { return nil }

func (w *WhatsMeow) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		msg, err := inbound.WhatsMeow(v)
		if err != nil {
			w.logger.Warn("whatsmeow message dropped", "id", v.Info.ID, "err", err)
			metrics.DroppedTotal(w.Name(), "malformed").Inc()
			return
		}
		if msg.Attachment != nil {
			if dm := downloadableOf(v.Message); dm != nil {
				w.media.put(msg.Attachment.Locator, dm, time.Now())
			}
		}
		w.logger.Info("whatsmeow message received",
			"trace", msg.ID,
			"chat", msg.ChatID,
			"text_len", len(msg.Text),
			"attachment", msg.Attachment != nil,
		)
		metrics.InboundTotal(w.Name()).Inc()
		if w.bus != nil {
			publish(w.bus, w.logger, msg)
		}
	case *events.Connected:
		w.logger.Info("whatsmeow session online")
	case *events.LoggedOut:
		w.logger.Error("whatsmeow device logged out; pair again", "reason", v.Reason)
	}
}

// Send writes reply to the chat JID as plain conversation messages. The
// linked device cannot attach remote media by URL, so a media link follows
// the text as its own message.
func (w *WhatsMeow) Send(ctx context.Context, chatID string, reply domain.Reply) error {
	if w.client == nil {
		return platformError("send", fmt.Errorf("whatsmeow not connected"))
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return platformError("send", fmt.Errorf("invalid JID %q: %w", chatID, err))
	}

	chunks := SplitMessage(reply.Body, MaxMessageRunes)
	if reply.Media != nil && reply.Media.URL != "" {
		chunks = append(chunks, reply.Media.URL)
	}
	for i, chunk := range chunks {
		if _, err := w.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(chunk)}); err != nil {
			return platformError("send", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err))
		}
		metrics.ChunksSent(w.Name()).Inc()
	}
	return nil
}

// FetchMedia downloads and decrypts a payload seen in a recent message.
func (w *WhatsMeow) FetchMedia(ctx context.Context, ref domain.AttachmentRef) ([]byte, string, error) {
	dm, ok := w.media.take(ref.Locator, time.Now())
	if !ok {
		return nil, "", fmt.Errorf("media %s expired or unknown", ref.Locator)
	}
	if w.client == nil {
		return nil, "", fmt.Errorf("whatsmeow not connected")
	}
	data, err := w.client.Download(ctx, dm)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	return data, ref.MIMEType, nil
}

func downloadableOf(m *waE2E.Message) whatsmeow.DownloadableMessage {
	switch {
	case m == nil:
		return nil
	case m.GetImageMessage() != nil:
		return m.GetImageMessage()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage()
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage()
	}
	return nil
}

type cachedMedia struct {
	msg whatsmeow.DownloadableMessage
	at  time.Time
}

// mediaCache holds downloadable payloads by message id until fetched or
// expired.
type mediaCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cachedMedia
}

func newMediaCache(ttl time.Duration) *mediaCache {
	return &mediaCache{ttl: ttl, items: make(map[string]cachedMedia)}
}

func (c *mediaCache) put(id string, msg whatsmeow.DownloadableMessage, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.items {
		if now.Sub(v.at) > c.ttl {
			delete(c.items, k)
		}
	}
	c.items[id] = cachedMedia{msg: msg, at: now}
}

func (c *mediaCache) take(id string, now time.Time) (whatsmeow.DownloadableMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return nil, false
	}
	delete(c.items, id)
	if now.Sub(item.at) > c.ttl {
		return nil, false
	}
	return item.msg, true
}

func (c *mediaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// slogWA adapts slog to whatsmeow's logger interface.
type slogWA struct{ l *slog.Logger }

func (s slogWA) Debugf(msg string, args ...any) { s.l.Debug(fmt.Sprintf(msg, args...)) }
func (s slogWA) Infof(msg string, args ...any)  { s.l.Info(fmt.Sprintf(msg, args...)) }
func (s slogWA) Warnf(msg string, args ...any)  { s.l.Warn(fmt.Sprintf(msg, args...)) }
func (s slogWA) Errorf(msg string, args ...any) { s.l.Error(fmt.Sprintf(msg, args...)) }
func (s slogWA) Sub(module string) waLog.Logger {
	return slogWA{s.l.With("module", module)}
}
