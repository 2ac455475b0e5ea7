package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"slipbot/internal/domain"
	"slipbot/internal/metrics"
)

// Result describes what a dispatch did. A zero Result means no command
// matched and nothing was sent.
type Result struct {
	Matched bool
	Command string
	Err     error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry  *Registry
	Responder domain.Responder
	Logger    *slog.Logger

	// RatePerMinute limits how many commands one sender may run per
	// minute, with bursts of up to RateBurst. 0 disables the limit.
	RatePerMinute float64
	RateBurst     int
}

// Dispatcher routes inbound messages to registered commands.
type Dispatcher struct {
	registry  *Registry
	responder domain.Responder
	logger    *slog.Logger
	limiter   *senderLimiter
}

// NewDispatcher creates a dispatcher over cfg.Registry.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		registry:  cfg.Registry,
		responder: cfg.Responder,
		logger:    cfg.Logger,
	}
	if cfg.RatePerMinute > 0 {
		d.limiter = newSenderLimiter(cfg.RatePerMinute, cfg.RateBurst)
	}
	return d
}

// Dispatch runs the command whose trigger equals the first word of msg.
// Command errors and panics are logged and reported to the sender with a
// failure reaction; they never propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.IncomingMessage) Result {
	metrics.MessagesTotal.Inc()

	for _, w := range d.registry.watchers() {
		d.watch(ctx, w, msg)
	}

	token := firstToken(msg.Text)
	if token == "" {
		return Result{}
	}
	cmd, ok := d.registry.Lookup(token)
	if !ok {
		return Result{}
	}
	metrics.CommandsTotal.Inc()
	res := Result{Matched: true, Command: cmd.Trigger()}
	logger := d.logger.With("command", res.Command, "channel", msg.Channel, "sender", msg.SenderID)

	if d.limiter != nil && !d.limiter.allow(msg.Channel+":"+msg.SenderID) {
		metrics.RateLimited.Inc()
		logger.Warn("sender rate limited")
		d.react(ctx, msg, domain.GlyphAlert, logger)
		res.Err = ErrRateLimited
		return res
	}

	logger.Debug("dispatching")
	res.Err = d.invoke(ctx, cmd, msg)
	if res.Err != nil {
		metrics.DispatchErrors.Inc()
		logger.Error("command failed", "err", res.Err)
		if !errors.Is(res.Err, ErrReported) {
			d.react(ctx, msg, domain.GlyphFailure, logger)
		}
	}
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, cmd Command, msg domain.IncomingMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("command panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("command %s panicked: %v", cmd.Trigger(), p)
		}
	}()
	return cmd.Handle(ctx, msg, d.responder)
}

func (d *Dispatcher) watch(ctx context.Context, w Watcher, msg domain.IncomingMessage) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("watcher panicked", "panic", p)
		}
	}()
	w.Watch(ctx, msg, d.responder)
}

func (d *Dispatcher) react(ctx context.Context, msg domain.IncomingMessage, glyph string, logger *slog.Logger) {
	if err := d.responder.React(ctx, msg, glyph); err != nil {
		logger.Warn("failed to send reaction", "glyph", glyph, "err", err)
	}
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// senderLimiter keeps one token bucket per sender.
type senderLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	senders map[string]*rate.Limiter
}

func newSenderLimiter(perMinute float64, burst int) *senderLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &senderLimiter{
		limit:   rate.Every(time.Duration(float64(time.Minute) / perMinute)),
		burst:   burst,
		senders: make(map[string]*rate.Limiter),
	}
}

func (l *senderLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.senders[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.senders[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
