package inbound

import (
	"time"

	"korabot/internal/domain"
)

// Terminal wraps one line typed into the local chat REPL.
func Terminal(line, user string) domain.InboundMessage {
	if user == "" {
		user = "local"
	}
	return newMessage("cli", "direct", user, user, line, time.Now())
}
