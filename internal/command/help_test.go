package command

import (
	"context"
	"strings"
	"testing"
)

func TestHelp_ListsEveryCommandInOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	help := NewHelp("!help", reg)
	reg.Register(help)
	reg.Register(&stubCommand{trigger: "!todo", summary: "todo: print"})
	reg.Register(&stubCommand{trigger: "!ping", summary: "ping: pong"})

	resp := &fakeResponder{}
	d := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp, Logger: testLogger()})

	// dispatch history must not change the listing
	d.Dispatch(context.Background(), msg("!todo milk"))
	d.Dispatch(context.Background(), msg("!ping"))
	d.Dispatch(context.Background(), msg("!HELP"))

	replies := resp.of("reply")
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %v", replies)
	}
	want := "Available commands:\n" +
		"\t - help: 🆘 Show info about commands.\n" +
		"\t - todo: print\n" +
		"\t - ping: pong\n"
	if replies[0].content != want {
		t.Fatalf("unexpected help text:\n%q\nwant\n%q", replies[0].content, want)
	}
}

func TestHelp_EachDescriptorOnce(t *testing.T) {
	reg := NewRegistry(testLogger())
	help := NewHelp("!help", reg)
	reg.Register(help)
	reg.Register(&stubCommand{trigger: "!todo", summary: "todo: print"})

	for i := 0; i < 3; i++ {
		text := help.Text()
		if n := strings.Count(text, "todo: print"); n != 1 {
			t.Fatalf("expected todo listed once, got %d", n)
		}
	}
}
