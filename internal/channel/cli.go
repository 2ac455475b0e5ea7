package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"slipbot/internal/domain"
)

// CLI implements domain.Channel for a terminal session. Lines typed on the
// input are treated as messages from the local user; a trailing
// "< path" attaches a file from disk.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	now    func() time.Time

	mu sync.Mutex // guards out
}

type CLIConfig struct {
	Logger *slog.Logger
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
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		now:    time.Now,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start reads lines until EOF, "/quit" or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound("cli", c.handleOutbound)

	c.printf("slipbot console. Type !help for commands, /quit to exit.\n")

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" || line == "/q" {
				c.logger.Info("user requested quit")
				return nil
			}
			c.bus.Publish(c.toMessage(line))
		}
	}
}

func (c *CLI) Stop() error { return nil }

func (c *CLI) toMessage(line string) domain.IncomingMessage {
	now := c.now()
	msg := domain.IncomingMessage{
		Channel:   "cli",
		ChatID:    "console",
		SenderID:  "local",
		MessageID: strconv.FormatInt(now.UnixMilli(), 10),
		Text:      line,
		Timestamp: now.UnixMilli(),
	}
	if text, path, ok := strings.Cut(line, " < "); ok {
		path = strings.TrimSpace(path)
		data, err := os.ReadFile(path)
		if err != nil {
			c.printf("cannot attach %s: %v\n", path, err)
		} else {
			msg.Text = strings.TrimSpace(text)
			msg.Attachments = []domain.Attachment{{Filename: path, Data: data}}
		}
	}
	return msg
}

func (c *CLI) handleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	switch msg.Kind {
	case domain.OutboundText:
		c.printf("%s\n", msg.Content)
	case domain.OutboundReaction:
		c.printf("[%s]\n", msg.Content)
	case domain.OutboundReceipt:
	default:
		return fmt.Errorf("cli: unsupported outbound kind %q", msg.Kind)
	}
	return nil
}

func (c *CLI) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
