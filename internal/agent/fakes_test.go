package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"korabot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	panicky bool
	calls   []domain.ChatRequest
}

func (f *fakeProvider) Name() string                  { return "fake" }
func (f *fakeProvider) Healthy(context.Context) error { return nil }

func (f *fakeProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.panicky {
		panic("provider exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Content: f.reply}, nil
}

func (f *fakeProvider) Calls() []domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatRequest(nil), f.calls...)
}

type historyRow struct {
	sender string
	text   string
	at     time.Time
}

type fakeHistory struct {
	mu        sync.Mutex
	rows      []historyRow
	recentErr error
	appendErr error
	sweeps    int
}

func (h *fakeHistory) Append(_ context.Context, sender, text string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.rows = append(h.rows, historyRow{sender, text, at})
	return nil
}

func (h *fakeHistory) Recent(_ context.Context, sender string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recentErr != nil {
		return nil, h.recentErr
	}
	var out []string
	for _, r := range h.rows {
		if r.sender == sender {
			out = append(out, r.text)
		}
	}
	return out, nil
}

func (h *fakeHistory) Sweep(context.Context, time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweeps++
	return 0, nil
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) Rows() []historyRow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyRow(nil), h.rows...)
}

func (h *fakeHistory) Sweeps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sweeps
}

type fakeFetcher struct {
	data []byte
	mime string
	err  error
}

func (f *fakeFetcher) FetchMedia(context.Context, domain.AttachmentRef) ([]byte, string, error) {
	return f.data, f.mime, f.err
}

type fakeHost struct {
	url   string
	err   error
	calls int
}

func (f *fakeHost) Upload(context.Context, []byte, string) (string, error) {
	f.calls++
	return f.url, f.err
}

var errBoom = errors.New("boom")

// recordingHandler counts calls and returns a canned reply.
type recordingHandler struct {
	mu    sync.Mutex
	msgs  []domain.InboundMessage
	reply domain.Reply
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, msg domain.InboundMessage) (domain.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return h.reply, h.err
}

func (h *recordingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
