package provider

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultMaxTokens   = 4096
	maxErrorBody       = 4096
)

// SharedHTTPClient returns an HTTP client with connection pooling and an
// overall request timeout. Nothing retries on top of it.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
