package channel

import (
	"log/slog"

	"korabot/internal/domain"
	"korabot/internal/metrics"
)

// publish hands msg to the dispatcher, counting it as dropped when the
// queue refuses it.
func publish(bus domain.MessageBus, logger *slog.Logger, msg domain.InboundMessage) {
	if err := bus.Publish(msg); err != nil {
		metrics.DroppedTotal(msg.Channel, "queue").Inc()
		logger.Error("inbound message dropped", "channel", msg.Channel, "sender", msg.SenderID, "trace", msg.ID, "err", err)
	}
}
