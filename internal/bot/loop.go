// Package bot wires the message bus to the command dispatcher.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"slipbot/internal/command"
	"slipbot/internal/domain"
)

const defaultConcurrency = 4

// Dispatcher is the part of command.Dispatcher the loop uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.IncomingMessage) command.Result
}

// Loop receives inbound messages and dispatches them with bounded
// concurrency. Commands that need exclusive resources serialize themselves.
type Loop struct {
	bus         domain.MessageBus
	dispatcher  Dispatcher
	logger      *slog.Logger
	concurrency int
}

// LoopConfig holds the loop's dependencies.
type LoopConfig struct {
	Bus         domain.MessageBus
	Dispatcher  Dispatcher
	Logger      *slog.Logger
	Concurrency int // max parallel messages (default 4)
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Loop{
		bus:         cfg.Bus,
		dispatcher:  cfg.Dispatcher,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run consumes inbound messages until ctx is done or the bus is closed,
// then waits for in-flight dispatches to finish.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("bot loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("bot loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, bot loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(m domain.IncomingMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				l.process(ctx, m)
			}(msg)
		}
	}
}

func (l *Loop) process(ctx context.Context, msg domain.IncomingMessage) {
	res := l.dispatcher.Dispatch(ctx, msg)
	if !res.Matched {
		return
	}
	l.logger.Debug("message handled",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"command", res.Command,
		"ok", res.Err == nil,
	)
}
