package command

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"slipbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// action is one call made on fakeResponder.
type action struct {
	kind    string // reply | react | read
	content string
}

type fakeResponder struct {
	mu      sync.Mutex
	actions []action
	err     error
}

var _ domain.Responder = (*fakeResponder)(nil)

func (f *fakeResponder) add(kind, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action{kind: kind, content: content})
	return f.err
}

func (f *fakeResponder) Reply(ctx context.Context, to domain.IncomingMessage, text string) error {
	return f.add("reply", text)
}

func (f *fakeResponder) React(ctx context.Context, to domain.IncomingMessage, glyph string) error {
	return f.add("react", glyph)
}

func (f *fakeResponder) MarkRead(ctx context.Context, msg domain.IncomingMessage) error {
	return f.add("read", "")
}

func (f *fakeResponder) all() []action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]action(nil), f.actions...)
}

func (f *fakeResponder) of(kind string) []action {
	var out []action
	for _, a := range f.all() {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// stubCommand is a minimal command for registry and dispatcher tests.
type stubCommand struct {
	trigger string
	summary string
	handle  func(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) error

	mu    sync.Mutex
	calls int
	log   *[]string // lifecycle events, shared between stubs
}

func (s *stubCommand) Trigger() string  { return s.trigger }
func (s *stubCommand) Describe() string { return s.summary }

func (s *stubCommand) Handle(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.handle != nil {
		return s.handle(ctx, msg, r)
	}
	return nil
}

func (s *stubCommand) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type lifecycleStub struct {
	stubCommand
	startErr error
}

func (l *lifecycleStub) Start(ctx context.Context) error {
	*l.log = append(*l.log, "start "+l.trigger)
	return l.startErr
}

func (l *lifecycleStub) Stop() error {
	*l.log = append(*l.log, "stop "+l.trigger)
	return nil
}

func msg(text string) domain.IncomingMessage {
	return domain.IncomingMessage{
		Channel:   "signal",
		ChatID:    "+15550001",
		SenderID:  "+15550001",
		MessageID: "1700000000000",
		Text:      text,
		Timestamp: 1700000000000,
	}
}
