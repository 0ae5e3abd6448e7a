package agent

import (
	"strings"

	"korabot/internal/domain"
)

// PromptBuilder assembles the context sent to the text model.
type PromptBuilder struct {
	systemInstruction string
}

func NewPromptBuilder(systemInstruction string) *PromptBuilder {
	return &PromptBuilder{systemInstruction: strings.TrimSpace(systemInstruction)}
}

// BuildMessages returns the system turn, then each remembered message as a
// prior user turn, then the new message. Blank history rows are skipped.
func (p *PromptBuilder) BuildMessages(history []string, text string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	if p.systemInstruction != "" {
		msgs = append(msgs, domain.Message{Role: "system", Content: p.systemInstruction})
	}
	for _, h := range history {
		if strings.TrimSpace(h) == "" {
			continue
		}
		msgs = append(msgs, domain.Message{Role: "user", Content: h})
	}
	return append(msgs, domain.Message{Role: "user", Content: text})
}
