package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"slipbot/internal/domain"
)

func newTestDispatcher(r domain.Responder, cmds ...Command) *Dispatcher {
	reg := NewRegistry(testLogger())
	for _, c := range cmds {
		reg.Register(c)
	}
	return NewDispatcher(DispatcherConfig{Registry: reg, Responder: r, Logger: testLogger()})
}

func TestDispatch_NoMatchProducesNothing(t *testing.T) {
	resp := &fakeResponder{}
	todo := &stubCommand{trigger: "!todo"}
	d := newTestDispatcher(resp, todo)

	for _, text := range []string{"", "   ", "hello", "todo buy milk", "!todos x", "x !todo"} {
		if res := d.Dispatch(context.Background(), msg(text)); res.Matched || res.Err != nil {
			t.Errorf("%q: expected no outcome, got %+v", text, res)
		}
	}
	if todo.Calls() != 0 {
		t.Fatalf("command must not run, ran %d times", todo.Calls())
	}
	if acts := resp.all(); len(acts) != 0 {
		t.Fatalf("expected no replies or reactions, got %v", acts)
	}
}

func TestDispatch_MatchesFirstTokenCaseInsensitive(t *testing.T) {
	resp := &fakeResponder{}
	help := &stubCommand{trigger: "!help"}
	todo := &stubCommand{trigger: "!todo"}
	d := newTestDispatcher(resp, help, todo)

	res := d.Dispatch(context.Background(), msg("  !TODO buy milk"))
	if !res.Matched || res.Command != "!todo" || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if todo.Calls() != 1 || help.Calls() != 0 {
		t.Fatalf("expected only todo to run (todo=%d help=%d)", todo.Calls(), help.Calls())
	}
}

func TestDispatch_ErrorBecomesFailureReaction(t *testing.T) {
	resp := &fakeResponder{}
	boom := &stubCommand{trigger: "!boom", handle: func(ctx context.Context, m domain.IncomingMessage, r domain.Responder) error {
		return errors.New("boom")
	}}
	d := newTestDispatcher(resp, boom)

	res := d.Dispatch(context.Background(), msg("!boom"))
	if res.Err == nil {
		t.Fatal("expected error in result")
	}
	reacts := resp.of("react")
	if len(reacts) != 1 || reacts[0].content != domain.GlyphFailure {
		t.Fatalf("expected one failure reaction, got %v", reacts)
	}
}

func TestDispatch_ReportedErrorNotNotifiedTwice(t *testing.T) {
	resp := &fakeResponder{}
	cmd := &stubCommand{trigger: "!x", handle: func(ctx context.Context, m domain.IncomingMessage, r domain.Responder) error {
		r.React(ctx, m, domain.GlyphFailure)
		return fmt.Errorf("%w: device gone", ErrReported)
	}}
	d := newTestDispatcher(resp, cmd)

	d.Dispatch(context.Background(), msg("!x"))
	if n := len(resp.of("react")); n != 1 {
		t.Fatalf("expected exactly one reaction, got %d", n)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	resp := &fakeResponder{}
	cmd := &stubCommand{trigger: "!panic", handle: func(ctx context.Context, m domain.IncomingMessage, r domain.Responder) error {
		panic("nil map")
	}}
	ok := &stubCommand{trigger: "!ok"}
	d := newTestDispatcher(resp, cmd, ok)

	res := d.Dispatch(context.Background(), msg("!panic now"))
	if res.Err == nil || !strings.Contains(res.Err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", res.Err)
	}
	if reacts := resp.of("react"); len(reacts) != 1 || reacts[0].content != domain.GlyphFailure {
		t.Fatalf("expected failure reaction, got %v", reacts)
	}

	// the dispatcher keeps working
	if res := d.Dispatch(context.Background(), msg("!ok")); !res.Matched || res.Err != nil {
		t.Fatalf("dispatch after panic failed: %+v", res)
	}
}

type watchingStub struct {
	stubCommand
	seen []string
}

func (w *watchingStub) Watch(ctx context.Context, m domain.IncomingMessage, r domain.Responder) {
	w.seen = append(w.seen, m.Text)
}

func TestDispatch_WatchersSeeEveryMessage(t *testing.T) {
	resp := &fakeResponder{}
	w := &watchingStub{stubCommand: stubCommand{trigger: "!todo"}}
	d := newTestDispatcher(resp, w)

	d.Dispatch(context.Background(), msg("hello"))
	d.Dispatch(context.Background(), msg(""))
	d.Dispatch(context.Background(), msg("!todo x"))

	if len(w.seen) != 3 {
		t.Fatalf("expected watcher to see 3 messages, saw %v", w.seen)
	}
	if w.Calls() != 1 {
		t.Fatalf("expected one handled message, got %d", w.Calls())
	}
}

func TestDispatch_RateLimit(t *testing.T) {
	resp := &fakeResponder{}
	cmd := &stubCommand{trigger: "!todo"}
	reg := NewRegistry(testLogger())
	reg.Register(cmd)
	d := NewDispatcher(DispatcherConfig{
		Registry:      reg,
		Responder:     resp,
		Logger:        testLogger(),
		RatePerMinute: 1,
		RateBurst:     2,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if res := d.Dispatch(ctx, msg("!todo x")); res.Err != nil {
			t.Fatalf("dispatch %d: %v", i, res.Err)
		}
	}
	res := d.Dispatch(ctx, msg("!todo x"))
	if !errors.Is(res.Err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %+v", res)
	}
	if cmd.Calls() != 2 {
		t.Fatalf("expected 2 runs, got %d", cmd.Calls())
	}

	other := msg("!todo y")
	other.SenderID = "+15550002"
	if res := d.Dispatch(ctx, other); res.Err != nil {
		t.Fatalf("other sender should have its own budget: %v", res.Err)
	}
}
