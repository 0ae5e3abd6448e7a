// Package imagehost re-hosts inbound images on an im.ge-compatible upload API.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"korabot/internal/config"
)

const (
	defaultUploadURL = "https://im.ge/api/1/upload"
	maxErrorBody     = 4096
)

// Client uploads images with a multipart "source" field and reads the hosted
// URL back from the JSON response.
type Client struct {
	uploadURL string
	apiKey    string
	http      *http.Client
	logger    *slog.Logger
}

func New(cfg config.ImageHostConfig, logger *slog.Logger) *Client {
	url := cfg.URL
	if url == "" {
		url = defaultUploadURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		uploadURL: url,
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type uploadResponse struct {
	StatusCode int `json:"status_code"`
	Image      struct {
		URL string `json:"url"`
	} `json:"image"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Upload sends data as filename and returns the durable URL.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if filename == "" {
		filename = "attachment.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="source"; filename=%q`, filename))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("upload returned %d: %s", resp.StatusCode, string(b))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Image.URL == "" {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("upload rejected: %s", out.Error.Message)
		}
		return "", fmt.Errorf("upload response has no image url")
	}

	c.logger.Info("image uploaded", "url", out.Image.URL, "bytes", len(data), "duration", time.Since(start))
	return out.Image.URL, nil
}
