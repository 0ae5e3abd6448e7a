package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/inbound"
	"korabot/internal/metrics"
)

const (
	whatsappAPIBase     = "https://graph.facebook.com/v21.0"
	whatsappWebhookPath = "/webhook/whatsapp"
	maxWebhookBody      = 1 << 20
)

// WhatsApp implements domain.Channel and domain.MediaFetcher for the
// WhatsApp Business Cloud API. Inbound events arrive on a webhook mounted on
// the shared HTTP server.
type WhatsApp struct {
	cfg     config.WhatsAppConfig
	timeout time.Duration
	bus     domain.MessageBus
	logger  *slog.Logger
	client  *http.Client
}

type WhatsAppChannelConfig struct {
	Config config.WhatsAppConfig
	Logger *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	c := cfg.Config
	if c.APIBase == "" {
		c.APIBase = whatsappAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.WebhookPath == "" {
		c.WebhookPath = whatsappWebhookPath
	}
	timeout := timeoutOrDefault(c.TimeoutSeconds)
	return &WhatsApp{
		cfg:     c,
		timeout: timeout,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Start wires the outbound handler. The webhook itself is served by the
// router passed to Register, so Start returns immediately.
func (w *WhatsApp) Start(_ context.Context, bus domain.MessageBus) error {
	w.bus = bus
	bus.OnOutbound(w.Name(), func(msg domain.OutboundMessage) error {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		return w.Send(ctx, msg.ChatID, msg.Reply)
	})
	w.logger.Info("whatsapp channel ready", "webhook", w.cfg.WebhookPath)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

// Register mounts the verification handshake and the event receiver.
func (w *WhatsApp) Register(r gin.IRoutes) {
	r.GET(w.cfg.WebhookPath, w.handleVerification)
	r.POST(w.cfg.WebhookPath, w.handleIncoming)
}

// handleVerification answers Meta's subscription challenge.
func (w *WhatsApp) handleVerification(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && w.cfg.VerifyToken != "" &&
		hmac.Equal([]byte(token), []byte(w.cfg.VerifyToken)) {
		w.logger.Info("whatsapp webhook verified")
		c.String(http.StatusOK, "%s", challenge)
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	c.String(http.StatusForbidden, "Forbidden")
}

func (w *WhatsApp) handleIncoming(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "Bad request")
		return
	}

	if w.cfg.AppSecret != "" && !w.verifySignature(body, c.GetHeader("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp invalid signature")
		metrics.DroppedTotal(w.Name(), "signature").Inc()
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	var payload inbound.CloudPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		metrics.DroppedTotal(w.Name(), "malformed").Inc()
		c.String(http.StatusBadRequest, "Bad request")
		return
	}

	// Status callbacks (delivered, read) carry no messages and are acked.
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				w.publishCloud(m, change.Value.ContactName(m.From))
			}
		}
	}

	c.Status(http.StatusOK)
}

func (w *WhatsApp) publishCloud(m inbound.CloudMessage, name string) {
	msg, err := inbound.WhatsAppCloud(m, name)
	if err != nil {
		w.logger.Warn("whatsapp message dropped", "id", m.ID, "err", err)
		metrics.DroppedTotal(w.Name(), "malformed").Inc()
		return
	}
	w.logger.Info("whatsapp message received",
		"trace", msg.ID,
		"type", m.Type,
		"text_len", len(msg.Text),
	)
	metrics.InboundTotal(w.Name()).Inc()
	if w.bus != nil {
		publish(w.bus, w.logger, msg)
	}
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	expected, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// Send delivers reply to the WhatsApp number chatID as text pieces, then an
// image message when reply carries a media URL. The first failure aborts.
func (w *WhatsApp) Send(ctx context.Context, chatID string, reply domain.Reply) error {
	chunks := SplitMessage(reply.Body, MaxMessageRunes)
	for i, chunk := range chunks {
		err := w.post(ctx, map[string]any{
			"messaging_product": "whatsapp",
			"to":                chatID,
			"type":              "text",
			"text":              map[string]any{"body": chunk, "preview_url": false},
		})
		if err != nil {
			return platformError("send", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err))
		}
		metrics.ChunksSent(w.Name()).Inc()
	}

	if reply.Media != nil && reply.Media.URL != "" {
		err := w.post(ctx, map[string]any{
			"messaging_product": "whatsapp",
			"to":                chatID,
			"type":              "image",
			"image":             map[string]string{"link": reply.Media.URL},
		})
		if err != nil {
			return platformError("send_image", err)
		}
	}
	return nil
}

func (w *WhatsApp) post(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("%s/%s/messages", w.cfg.APIBase, w.cfg.PhoneNumberID)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// FetchMedia resolves a media id to its short-lived URL, then downloads it.
// Both requests need the access token.
func (w *WhatsApp) FetchMedia(ctx context.Context, ref domain.AttachmentRef) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.APIBase+"/"+ref.Locator, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media lookup: HTTP %d", resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MIMEType string `json:"mime_type"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media lookup: no url for %s", ref.Locator)
	}

	fallback := meta.MIMEType
	if fallback == "" {
		fallback = ref.MIMEType
	}
	header := http.Header{"Authorization": {"Bearer " + w.cfg.AccessToken}}
	return downloadMedia(ctx, w.client, meta.URL, header, fallback)
}
