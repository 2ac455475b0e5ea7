package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"slipbot/internal/domain"
	"slipbot/internal/metrics"
	"slipbot/internal/render"
)

// MissingTodoReply is sent when the trigger arrives without a body.
const MissingTodoReply = "What todo?"

const (
	previewLimit  = 30
	previewPrefix = 20
)

// Printer runs render operations on the receipt printer.
type Printer interface {
	Print(ctx context.Context, ops []render.Op) error
	Check(ctx context.Context) error
}

// State is the stage a todo job is in.
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateRendering
	StatePrinting
	StateAcknowledging
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateRendering:
		return "rendering"
	case StatePrinting:
		return "printing"
	case StateAcknowledging:
		return "acknowledging"
	default:
		return "idle"
	}
}

// Todo prints a to-do slip for every "!todo <text>" message, with any
// image attachments below the text. Jobs run one at a time; a message
// that arrives mid-job waits for the current one to finish.
type Todo struct {
	trigger  string
	printer  Printer
	renderer render.Renderer
	logger   *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// TodoConfig configures a Todo command.
type TodoConfig struct {
	Trigger  string
	Printer  Printer
	Renderer render.Renderer
	Logger   *slog.Logger
}

// NewTodo creates the todo command; call Start to check the printer.
func NewTodo(cfg TodoConfig) *Todo {
	return &Todo{
		trigger:  cfg.Trigger,
		printer:  cfg.Printer,
		renderer: cfg.Renderer,
		logger:   cfg.Logger.With("command", "todo"),
	}
}

func (t *Todo) Trigger() string  { return t.trigger }
func (t *Todo) Describe() string { return "todo: 🖨️ Print out a to-do slip." }

// State returns the stage of the job in flight, or StateIdle.
func (t *Todo) State() State { return State(t.state.Load()) }

func (t *Todo) setState(s State) {
	t.state.Store(int32(s))
	t.logger.Debug("todo state", "state", s)
}

// Start checks that the printer can be opened. An unreachable printer is
// logged and tolerated; jobs will report the failure when they run.
func (t *Todo) Start(ctx context.Context) error {
	if err := t.printer.Check(ctx); err != nil {
		t.logger.Warn("printer not reachable at startup", "err", err)
		return nil
	}
	t.logger.Info("printer initialized")
	return nil
}

func (t *Todo) Stop() error { return nil }

// Watch marks every message the bot sees as read.
func (t *Todo) Watch(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) {
	if err := r.MarkRead(ctx, msg); err != nil {
		t.logger.Debug("read receipt failed", "err", err)
	}
}

// Handle runs one job: validate, render, print, acknowledge.
func (t *Todo) Handle(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.setState(StateIdle)

	t.setState(StateValidating)
	t.logger.Debug("received", "text", msg.Text)

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], t.trigger) {
		return nil
	}
	if len(fields) < 2 {
		if err := r.React(ctx, msg, domain.GlyphAlert); err != nil {
			t.logger.Warn("failed to send reaction", "err", err)
		}
		if err := r.Reply(ctx, msg, MissingTodoReply); err != nil {
			return fmt.Errorf("reply: %w", err)
		}
		return nil
	}

	body := StripTrigger(msg.Text)
	logger := t.logger.With("job", uuid.NewString()[:8])
	logger.Info("NEW TODO", "preview", Preview(body),
		"attachments", len(msg.Attachments),
		"size", humanize.Bytes(attachmentBytes(msg.Attachments)),
	)

	t.setState(StateRendering)
	images, failed := render.DecodeAttachments(msg.Attachments)
	for _, f := range failed {
		metrics.AttachmentsSkipped.Inc()
		logger.Warn("skipping attachment", "file", f.Filename, "size", humanize.Bytes(uint64(f.Size)), "err", f.Err)
	}
	ops := t.renderer.Render(msg.Timestamp, body, images)

	t.setState(StatePrinting)
	start := time.Now()
	if err := t.printer.Print(ctx, ops); err != nil {
		metrics.PrintFailures.Inc()
		logger.Error("print failed", "err", err)
		if rerr := r.React(ctx, msg, domain.GlyphFailure); rerr != nil {
			logger.Warn("failed to send failure reaction", "err", rerr)
		}
		return fmt.Errorf("%w: print todo: %w", ErrReported, err)
	}
	elapsed := time.Since(start)
	metrics.PrintJobs.Inc()
	metrics.PrintLatency.Observe(elapsed.Seconds())
	logger.Info("printed", "images", len(images), "elapsed", elapsed.Round(time.Millisecond))

	t.setState(StateAcknowledging)
	if err := r.React(ctx, msg, domain.GlyphPrinted); err != nil {
		logger.Warn("failed to acknowledge", "err", err)
	}
	return nil
}

// StripTrigger removes the first word of text and the whitespace around the
// remainder.
func StripTrigger(text string) string {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

// Preview shortens body for log lines: bodies longer than 30 characters
// are cut to their first 20 followed by "...".
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewPrefix]) + "..."
}

func attachmentBytes(atts []domain.Attachment) uint64 {
	var n uint64
	for _, a := range atts {
		n += uint64(len(a.Data))
	}
	return n
}
