package channel

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// maxMediaBytes caps attachment downloads. Both platforms limit bot
// downloads to 20 MB.
const maxMediaBytes = 20 << 20

const defaultPlatformTimeout = 30 * time.Second

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultPlatformTimeout
	}
	return time.Duration(seconds) * time.Second
}

// downloadMedia GETs url and returns the body and its media type. fallback is
// used when the server does not name one.
func downloadMedia(ctx context.Context, client *http.Client, url string, header http.Header, fallback string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media larger than %d bytes", maxMediaBytes)
	}

	mimeType := fallback
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt != "application/octet-stream" {
		mimeType = mt
	}
	return data, mimeType, nil
}
