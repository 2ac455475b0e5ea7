package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slipbot/internal/render"
)

// Spooler serializes print jobs onto a single Transport.
type Spooler struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	slot      chan struct{}
}

// NewSpooler wraps t. timeout covers the wait for the device and is checked
// before each operation; a single Transport call that blocks is bounded only
// by the transport itself (Device sets a deadline on every write). 0 disables
// the timeout.
func NewSpooler(t Transport, timeout time.Duration, logger *slog.Logger) *Spooler {
	return &Spooler{
		transport: t,
		timeout:   timeout,
		logger:    logger,
		slot:      make(chan struct{}, 1),
	}
}

// Print runs ops against the transport. Only one job runs at a time. A
// failing operation aborts the rest of the job; the session is closed on
// every path once it has been opened. Cancelling ctx does not interrupt a
// job that has started; only the spooler timeout does.
func (s *Spooler) Print(ctx context.Context, ops []render.Op) (err error) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for printer: %w", ctx.Err())
	}
	defer func() { <-s.slot }()

	open := false
	defer func() {
		if !open {
			return
		}
		if cerr := s.transport.Close(); cerr != nil {
			s.logger.Warn("printer close after failure", "err", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	for i, op := range ops {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("print op %d (%s): %w", i, op, cerr)
		}
		if op.Kind == render.OpClose {
			open = false
		}
		if err := s.apply(ctx, op); err != nil {
			return fmt.Errorf("print op %d (%s): %w", i, op, err)
		}
		if op.Kind == render.OpOpen {
			open = true
		}
	}
	return nil
}

func (s *Spooler) apply(ctx context.Context, op render.Op) error {
	switch op.Kind {
	case render.OpOpen:
		if err := s.transport.Open(ctx); err != nil {
			return err
		}
		if err := s.transport.SetAlign(AlignLeft); err != nil {
			_ = s.transport.Close()
			return err
		}
		return nil
	case render.OpText:
		return s.transport.WriteLine(op.Text)
	case render.OpBold:
		return s.transport.SetBold(op.Bold)
	case render.OpImage:
		return s.transport.WriteImage(op.Image)
	case render.OpCut:
		return s.transport.Cut()
	case render.OpClose:
		return s.transport.Close()
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}
}

// Check opens and closes the device once to confirm it is reachable.
func (s *Spooler) Check(ctx context.Context) error {
	return s.Print(ctx, []render.Op{{Kind: render.OpOpen}, {Kind: render.OpClose}})
}
