package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korabot/internal/config"
	"korabot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAI_ChatText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL + "/", Model: "m1", Logger: quietLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages:    []domain.Message{{Role: "system", Content: "KORA AI"}, {Role: "user", Content: "hello"}},
		Temperature: 0.3,
		TopP:        0.95,
		MaxTokens:   8192,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	assert.Equal(t, "m1", got["model"])
	assert.InDelta(t, 0.95, got["top_p"], 1e-9)
	assert.EqualValues(t, 8192, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestOpenAI_ChatImageAsDataURI(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"choices":[{"message":{"content":"a cat"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Logger: quietLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{
			Role:    "user",
			Content: "describe",
			Images:  []domain.Image{{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}},
		}},
	})
	require.NoError(t, err)

	parts := got["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", img)
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{Name: "gemini", APIBase: srv.URL, Logger: quietLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini 429")
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Logger: quietLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: "user", Content: "x"}}})
	assert.Error(t, err)
}

func TestOpenAI_TimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOllama_ChatSendsImagesAndOptions(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"message":{"role":"assistant","content":"ok"},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":1}`)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: quietLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages:    []domain.Message{{Role: "user", Content: "what", Images: []domain.Image{{Data: []byte("abc")}}}},
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, []string{"YWJj"}, got.Messages[0].Images)
	assert.InDelta(t, 0.3, got.Options["temperature"], 1e-9)
}

func TestClaude_ChatRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       got["model"],
			"stop_reason": "max_tokens",
			"content":     []map[string]any{{"type": "text", "text": "A dog."}},
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	p := NewClaude(ClaudeConfig{APIKey: "test-key", APIBase: srv.URL + "/v1", Model: "claude-test", Logger: quietLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: "KORA AI"},
			{Role: "user", Content: "what is it", Images: []domain.Image{{Data: []byte("png"), MIMEType: "image/png"}}},
		},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "A dog.", resp.Content)
	assert.Equal(t, "length", resp.FinishReason)
	assert.Equal(t, 13, resp.Usage.TotalTokens)

	assert.Equal(t, "claude-test", got["model"])
	system := got["system"].([]any)
	assert.Equal(t, "KORA AI", system[0].(map[string]any)["text"])
	content := got["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
}

func TestNormalizeClaudeBase(t *testing.T) {
	assert.Equal(t, claudeDefaultBase, normalizeClaudeBase(""))
	assert.Equal(t, "https://proxy.local", normalizeClaudeBase("https://proxy.local/v1/"))
}

func TestFactory_Roles(t *testing.T) {
	ai := config.Defaults().AI
	ai.Text.APIKey = "k"
	ai.Image = config.ModelConfig{Provider: "ollama", Model: "llava"}

	f := NewFactory(ai, quietLogger())
	text, err := f.Get(RoleText)
	require.NoError(t, err)
	assert.Equal(t, "gemini", text.Name())
	assert.True(t, strings.HasPrefix(text.(*OpenAI).apiBase, GeminiOpenAIBase))

	again, err := f.Get(RoleText)
	require.NoError(t, err)
	assert.Same(t, text, again)

	img, err := f.Get(RoleImage)
	require.NoError(t, err)
	assert.Equal(t, "ollama", img.Name())
	assert.Equal(t, "llava", f.Model(RoleImage).Model)

	_, err = f.Get("audio")
	assert.Error(t, err)
}

func TestFactory_UnknownProvider(t *testing.T) {
	ai := config.Defaults().AI
	ai.Text.Provider = "palm"
	_, err := NewFactory(ai, quietLogger()).Get(RoleText)
	assert.ErrorContains(t, err, "palm")
}
