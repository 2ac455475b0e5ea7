package bot

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slipbot/internal/bus"
	"slipbot/internal/command"
	"slipbot/internal/domain"
	"slipbot/internal/printer"
	"slipbot/internal/render"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingDispatcher struct {
	mu       sync.Mutex
	seen     []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (d *countingDispatcher) Dispatch(ctx context.Context, msg domain.IncomingMessage) command.Result {
	n := d.inFlight.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(d.delay)
	d.inFlight.Add(-1)

	d.mu.Lock()
	d.seen = append(d.seen, msg.Text)
	d.mu.Unlock()
	return command.Result{Matched: true, Command: "!x"}
}

func TestLoop_BoundedConcurrency(t *testing.T) {
	b := bus.New(20, testLogger())
	d := &countingDispatcher{delay: 20 * time.Millisecond}
	loop := NewLoop(LoopConfig{Bus: b, Dispatcher: d, Logger: testLogger(), Concurrency: 2})

	for i := 0; i < 8; i++ {
		b.Publish(domain.IncomingMessage{Channel: "cli", Text: "!x"})
	}
	b.Close()

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after bus close")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) != 8 {
		t.Fatalf("expected 8 dispatches, got %d", len(d.seen))
	}
	if p := d.peak.Load(); p > 2 {
		t.Fatalf("concurrency exceeded: peak %d", p)
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	b := bus.New(1, testLogger())
	defer b.Close()
	loop := NewLoop(LoopConfig{Bus: b, Dispatcher: &countingDispatcher{}, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

// End to end: bus -> loop -> dispatcher -> todo -> spooler -> recorder, with
// reactions routed back through the bus to the originating channel.
func TestLoop_TodoEndToEnd(t *testing.T) {
	b := bus.New(10, testLogger())

	var mu sync.Mutex
	var out []domain.OutboundMessage
	b.OnOutbound("signal", func(ctx context.Context, msg domain.OutboundMessage) error {
		mu.Lock()
		defer mu.Unlock()
		out = append(out, msg)
		return nil
	})

	rec := &printer.Recorder{}
	reg := command.NewRegistry(testLogger())
	reg.Register(command.NewHelp("!help", reg))
	reg.Register(command.NewTodo(command.TodoConfig{
		Trigger:  "!todo",
		Printer:  printer.NewSpooler(rec, time.Second, testLogger()),
		Renderer: render.New(0, time.UTC),
		Logger:   testLogger(),
	}))
	disp := command.NewDispatcher(command.DispatcherConfig{Registry: reg, Responder: b, Logger: testLogger()})
	loop := NewLoop(LoopConfig{Bus: b, Dispatcher: disp, Logger: testLogger()})

	b.Publish(domain.IncomingMessage{
		Channel:   "signal",
		ChatID:    "+15550001",
		SenderID:  "+15550001",
		MessageID: "1700000000000",
		Text:      "!todo water plants",
		Timestamp: 1700000000000,
	})
	b.Close()
	loop.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(out) != 2 {
		t.Fatalf("expected receipt and reaction, got %+v", out)
	}
	if out[0].Kind != domain.OutboundReceipt {
		t.Fatalf("first outbound should be the read receipt, got %+v", out[0])
	}
	if out[1].Kind != domain.OutboundReaction || out[1].Content != domain.GlyphPrinted || out[1].Target.Timestamp != 1700000000000 {
		t.Fatalf("unexpected reaction %+v", out[1])
	}
	if calls := rec.Calls(); len(calls) == 0 || calls[len(calls)-1] != "close" {
		t.Fatalf("unexpected printer calls %v", calls)
	}
}
