package agent

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"korabot/internal/domain"
)

// startTime records when the process started for /uptime.
var startTime = time.Now()

// version is set by the build system.
var version = "0.1.0"

// SetVersion sets the version string reported by /version.
func SetVersion(v string) {
	version = v
}

// Invocation is a parsed command addressed to the bot.
type Invocation struct {
	Name     string // lower-cased, without prefix
	Argument string // remainder after the name, trimmed
	Message  domain.InboundMessage
}

// Operation is one registered command.
type Operation interface {
	Description() string
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc struct {
	Desc string
	Fn   func(ctx context.Context, inv Invocation) (string, error)
}

func (o OperationFunc) Description() string { return o.Desc }

func (o OperationFunc) Execute(ctx context.Context, inv Invocation) (string, error) {
	return o.Fn(ctx, inv)
}

// ParseCommand splits text into a command name and argument when it starts
// with prefix. A "@name" suffix on the command is accepted only when it
// matches botUsername; ok is false for commands addressed to another bot.
func ParseCommand(text, prefix, botUsername string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, prefix)

	head := rest
	if i := strings.IndexFunc(rest, isSpace); i >= 0 {
		head, arg = rest[:i], strings.TrimSpace(rest[i:])
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		target := head[at+1:]
		if botUsername == "" || !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
			return "", "", false
		}
		head = head[:at]
	}
	return strings.ToLower(head), arg, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// CommandsConfig configures the command registry.
type CommandsConfig struct {
	Prefix  string
	History domain.HistoryStore // backs /history; optional
	Extra   map[string]Operation
}

// Commands is the static command registry.
type Commands struct {
	prefix string
	ops    map[string]Operation
}

func NewCommands(cfg CommandsConfig) *Commands {
	c := &Commands{prefix: cfg.Prefix, ops: make(map[string]Operation)}
	c.ops["start"] = OperationFunc{Desc: "Greet the user", Fn: startOp}
	c.ops["help"] = OperationFunc{Desc: "List available commands", Fn: func(context.Context, Invocation) (string, error) {
		return c.helpText(), nil
	}}
	c.ops["uptime"] = OperationFunc{Desc: "Show how long the bot has been running", Fn: uptimeOp}
	c.ops["version"] = OperationFunc{Desc: "Show version info", Fn: versionOp}
	if cfg.History != nil {
		c.ops["history"] = historyOp(cfg.History)
	}
	for name, op := range cfg.Extra {
		c.ops[strings.ToLower(name)] = op
	}
	return c
}

// Names returns the registered command names, sorted.
func (c *Commands) Names() []string {
	names := make([]string, 0, len(c.ops))
	for n := range c.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named operation. An unknown name is not an error: it
// yields the fixed not-found reply.
func (c *Commands) Execute(ctx context.Context, inv Invocation) (domain.Reply, error) {
	op, ok := c.ops[strings.ToLower(inv.Name)]
	if !ok {
		return domain.TextReply(c.notFoundText()), nil
	}
	out, err := op.Execute(ctx, inv)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("command %s: %w", inv.Name, err)
	}
	return domain.TextReply(out), nil
}

func (c *Commands) notFoundText() string {
	return fmt.Sprintf("🚫 The Command you are using does not exist, Type %shelp to view Available Commands.", c.prefix)
}

func (c *Commands) helpText() string {
	var sb strings.Builder
	sb.WriteString("Available Commands:\n")
	for _, name := range c.Names() {
		fmt.Fprintf(&sb, "\n%s%s - %s", c.prefix, name, c.ops[name].Description())
	}
	return sb.String()
}

func startOp(_ context.Context, inv Invocation) (string, error) {
	name := inv.Message.SenderName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello, %s! I am your bot, ready to assist you!", name), nil
}

func uptimeOp(context.Context, Invocation) (string, error) {
	return fmt.Sprintf("I have been running for %.2f seconds.", time.Since(startTime).Seconds()), nil
}

func versionOp(context.Context, Invocation) (string, error) {
	return fmt.Sprintf("korabot v%s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version()), nil
}

func historyOp(store domain.HistoryStore) Operation {
	return OperationFunc{Desc: "Show how many of your messages I remember", Fn: func(ctx context.Context, inv Invocation) (string, error) {
		recent, err := store.Recent(ctx, inv.Message.SenderID)
		if err != nil {
			return "", err
		}
		switch len(recent) {
		case 0:
			return "I don't remember any of your messages from the last 24 hours.", nil
		case 1:
			return "I remember 1 message from you in the last 24 hours.", nil
		default:
			return fmt.Sprintf("I remember %d messages from you in the last 24 hours.", len(recent)), nil
		}
	}}
}
