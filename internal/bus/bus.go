package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"korabot/internal/domain"
)

// DefaultPublishWait is how long Publish waits for room in a full queue.
const DefaultPublishWait = 10 * time.Second

var (
	ErrClosed = errors.New("bus closed")
	ErrFull   = errors.New("bus full")
)

// InMemoryBus queues normalized messages from the transports for the
// dispatcher and routes replies back to the transport they came from.
type InMemoryBus struct {
	inbound     chan domain.InboundMessage
	publishWait time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	senders  sync.WaitGroup // publishers past the closed check
	handlers map[string]func(domain.OutboundMessage) error
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:     make(chan domain.InboundMessage, bufferSize),
		publishWait: DefaultPublishWait,
		done:        make(chan struct{}),
		handlers:    make(map[string]func(domain.OutboundMessage) error),
		logger:      logger,
	}
}

// Publish enqueues msg. When the queue is full it waits up to the publish
// wait before giving up with ErrFull, or returns ErrClosed if the bus closes
// meanwhile.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.senders.Add(1)
	b.mu.RUnlock()
	defer b.senders.Done()

	select {
	case b.inbound <- msg:
		return nil
	default:
	}

	b.logger.Warn("inbound queue full, waiting", "channel", msg.Channel, "trace", msg.ID)
	timer := time.NewTimer(b.publishWait)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
		return nil
	case <-b.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrFull, b.publishWait)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound hands the reply to the sender registered for its channel.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) error {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no outbound handler registered for channel %q", msg.Channel)
	}
	return handler(msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundMessage) error) {
	b.mu.Lock()
	b.handlers[channelName] = handler
	b.mu.Unlock()
}

// Close stops intake. Publishers still waiting for room return ErrClosed.
// Queued messages can still be drained by the subscriber. Safe to call more
// than once.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.senders.Wait()
	close(b.inbound)
}
