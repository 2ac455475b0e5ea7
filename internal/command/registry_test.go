package command

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry(testLogger())
	todo := &stubCommand{trigger: "!todo", summary: "todo"}
	if err := reg.Register(todo); err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{"!todo", "!TODO", "!ToDo"} {
		got, ok := reg.Lookup(token)
		if !ok || got != todo {
			t.Errorf("Lookup(%q) did not find the command", token)
		}
	}
	if _, ok := reg.Lookup("!todos"); ok {
		t.Error("expected no match for a longer token")
	}
}

func TestRegistry_InvalidTrigger(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, trig := range []string{"", "!two words", "!tab\there"} {
		if err := reg.Register(&stubCommand{trigger: trig}); err == nil {
			t.Errorf("expected error for trigger %q", trig)
		}
	}
	if len(reg.Descriptors()) != 0 {
		t.Fatal("invalid commands must not be registered")
	}
}

func TestRegistry_DuplicateFirstWins(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &stubCommand{trigger: "!x", summary: "first"}
	second := &stubCommand{trigger: "!X", summary: "second"}
	reg.Register(first)
	reg.Register(second)

	got, _ := reg.Lookup("!x")
	if got != first {
		t.Fatal("expected the first registered command to win")
	}
	if n := len(reg.Descriptors()); n != 2 {
		t.Fatalf("expected both descriptors listed, got %d", n)
	}
}

func TestRegistry_DescriptorsSnapshot(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubCommand{trigger: "!a", summary: "a"})
	reg.Register(&stubCommand{trigger: "!b", summary: "b"})

	snap := reg.Descriptors()
	snap[0].Summary = "mutated"

	if reg.Descriptors()[0].Summary != "a" {
		t.Fatal("modifying a snapshot changed the registry")
	}
	var order []string
	for _, d := range reg.Descriptors() {
		order = append(order, d.Trigger)
	}
	if !reflect.DeepEqual(order, []string{"!a", "!b"}) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	var events []string
	reg := NewRegistry(testLogger())
	reg.Register(&lifecycleStub{stubCommand: stubCommand{trigger: "!a", log: &events}})
	reg.Register(&stubCommand{trigger: "!plain"})
	reg.Register(&lifecycleStub{stubCommand: stubCommand{trigger: "!b", log: &events}})

	if err := reg.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Stop(); err != nil {
		t.Fatal(err)
	}
	want := []string{"start !a", "start !b", "stop !b", "stop !a"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
}

func TestRegistry_StartFailure(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	reg := NewRegistry(testLogger())
	reg.Register(&lifecycleStub{stubCommand: stubCommand{trigger: "!a", log: &events}, startErr: boom})
	reg.Register(&lifecycleStub{stubCommand: stubCommand{trigger: "!b", log: &events}})

	if err := reg.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !reflect.DeepEqual(events, []string{"start !a"}) {
		t.Fatalf("expected start to stop at the failure, got %v", events)
	}
}
