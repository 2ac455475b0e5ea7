// Package command routes chat messages to the bot's commands.
//
// Commands are registered once at startup in a Registry, which resolves
// each trigger token to its command. The Dispatcher looks up the first
// word of every inbound message in that table and runs the matching
// command, recovering from its failures.
package command

import (
	"context"
	"errors"

	"slipbot/internal/domain"
)

// Describable is implemented by everything the help command can list.
type Describable interface {
	Describe() string
}

// Command is a chat command selected by its trigger token.
type Command interface {
	Describable
	Trigger() string
	Handle(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) error
}

// Watcher is implemented by commands that observe every dispatched message,
// whether or not it carries their trigger. Watch runs before routing.
type Watcher interface {
	Watch(ctx context.Context, msg domain.IncomingMessage, r domain.Responder)
}

// Lifecycle is implemented by commands that hold resources. Start runs once
// before the first dispatch and Stop once after the last.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

var (
	// ErrReported marks a command error that the user has already been
	// notified about.
	ErrReported = errors.New("failure already reported")

	// ErrRateLimited is returned when a sender exceeds the dispatch rate.
	ErrRateLimited = errors.New("rate limited")
)
