package domain

import "context"

// Provider is the interface all AI backends implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type ChatResponse struct {
	Content      string
	FinishReason string // stop | length
	Usage        Usage
	LatencyMs    int64
}

// Message is one conversation turn. Images are only honoured on user turns.
type Message struct {
	Role    string  `json:"role"` // system | user | assistant
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Image is inline image data for vision-capable models.
type Image struct {
	Data     []byte
	MIMEType string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
