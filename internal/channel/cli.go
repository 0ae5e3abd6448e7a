package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"korabot/internal/domain"
	"korabot/internal/inbound"
)

// CLI implements domain.Channel for interactive terminal chat. It runs the
// same router as the messaging platforms, which makes it handy for trying
// prompts and commands without a bot token.
type CLI struct {
	bus       domain.MessageBus
	logger    *slog.Logger
	user      string
	in        io.Reader
	out       io.Writer
	outMu     sync.Mutex
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	User   string // sender id for history; defaults to $USER
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}
	return &CLI{
		logger: cfg.Logger,
		user:   cfg.User,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL and blocks until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound(c.Name(), func(msg domain.OutboundMessage) error {
		c.stopThinking()
		c.print("\r\033[K")
		c.print("--- korabot ---\n")
		if err := c.Send(ctx, msg.ChatID, msg.Reply); err != nil {
			return err
		}
		c.print("---------------\nYou> ")
		return nil
	})

	c.print("korabot chat. Type a message and press Enter. Type /quit to exit.\nYou> ")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case raw := <-lines:
			line := strings.TrimSpace(raw)
			if line == "" {
				c.print("You> ")
				continue
			}
			if line == "/quit" || line == "/exit" || line == "/q" {
				c.logger.Info("user requested quit")
				return nil
			}

			c.startThinking()
			publish(c.bus, c.logger, inbound.Terminal(line, c.user))
		}
	}
}

func (c *CLI) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	stop := c.thinkStop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.print(fmt.Sprintf("\r%s Thinking...", frames[i%len(frames)]))
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(_ context.Context, _ string, reply domain.Reply) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if reply.Body != "" {
		if _, err := fmt.Fprintln(c.out, reply.Body); err != nil {
			return err
		}
	}
	if reply.Media != nil {
		if _, err := fmt.Fprintf(c.out, "[%s] %s\n", reply.Media.Kind, reply.Media.URL); err != nil {
			return err
		}
	}
	return nil
}
