package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"korabot/internal/domain"
	"korabot/internal/metrics"
)

const defaultConcurrency = 5

// Sweeper deletes expired history.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// LoopConfig holds the dependencies and tuning of the dispatch loop.
type LoopConfig struct {
	Router      *Router
	Bus         domain.MessageBus
	Sweeper     Sweeper       // optional
	SweepEvery  time.Duration // 0 sweeps on every event
	RateLimiter *RateLimiter  // optional
	Concurrency int
	Logger      *slog.Logger
}

// Loop consumes inbound messages from the bus, routes each one in its own
// goroutine and hands the reply back to the bus.
type Loop struct {
	router      *Router
	bus         domain.MessageBus
	sweeper     Sweeper
	sweepEvery  time.Duration
	limiter     *RateLimiter
	concurrency int
	logger      *slog.Logger

	lastSweep atomic.Int64 // unix nanos
	inflight  sync.WaitGroup
	now       func() time.Time
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Loop{
		router:      cfg.Router,
		bus:         cfg.Bus,
		sweeper:     cfg.Sweeper,
		sweepEvery:  cfg.SweepEvery,
		limiter:     cfg.RateLimiter,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Run processes messages until ctx is done or the bus closes, then waits
// for in-flight messages to finish.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started", "concurrency", l.concurrency)
	defer l.inflight.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, dispatch loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Warn("dropping message during shutdown", "trace", msg.ID)
				return
			}
			l.inflight.Add(1)
			go func(m domain.InboundMessage) {
				defer func() {
					<-sem
					l.inflight.Done()
				}()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// processMessage handles one message end to end. Routing runs on a context
// detached from shutdown so an in-flight reply is not cut off.
func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	work := context.WithoutCancel(ctx)
	l.maybeSweep(work)

	var reply domain.Reply
	if l.limiter != nil && !l.limiter.Allow(msg.SenderID) {
		l.logger.Warn("rate limited", "trace", msg.ID, "channel", msg.Channel, "sender", msg.SenderID)
		reply = l.router.Throttled(work, msg)
	} else {
		l.logger.Info("processing message",
			"trace", msg.ID,
			"channel", msg.Channel,
			"sender", msg.SenderID,
			"text_len", len(msg.Text),
			"attachment", msg.Attachment != nil,
		)
		reply = l.router.Route(work, msg)
	}

	err := l.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Reply:   reply,
		TraceID: msg.ID,
	})
	if err != nil {
		metrics.CollaboratorErrors(domain.CollaboratorPlatform, "send").Inc()
		l.logger.Error("reply delivery failed", "trace", msg.ID, "channel", msg.Channel, "err", err)
	}
}

// maybeSweep runs a history sweep when the last one is older than
// sweepEvery. Only one caller wins the slot.
func (l *Loop) maybeSweep(ctx context.Context) {
	if l.sweeper == nil {
		return
	}
	now := l.now()
	last := l.lastSweep.Load()
	if l.sweepEvery > 0 && last != 0 && now.Sub(time.Unix(0, last)) < l.sweepEvery {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	n, err := l.sweeper.Sweep(ctx, now)
	if err != nil {
		l.logger.Warn("history sweep failed", "err", err)
		return
	}
	if n > 0 {
		metrics.HistorySwept.Add(n)
		l.logger.Debug("history swept", "deleted", n)
	}
}
