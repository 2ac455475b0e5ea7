package command

import (
	"context"
	"strings"

	"slipbot/internal/domain"
)

const helpHeader = "Available commands:\n"

// Help replies with the summary of every registered command.
type Help struct {
	trigger  string
	registry *Registry
}

// NewHelp returns a help command listing the commands in registry. The
// registry is only read.
func NewHelp(trigger string, registry *Registry) *Help {
	return &Help{trigger: trigger, registry: registry}
}

func (h *Help) Trigger() string  { return h.trigger }
func (h *Help) Describe() string { return "help: 🆘 Show info about commands." }

func (h *Help) Handle(ctx context.Context, msg domain.IncomingMessage, r domain.Responder) error {
	return r.Reply(ctx, msg, h.Text())
}

// Text renders the help listing in registration order.
func (h *Help) Text() string {
	var sb strings.Builder
	sb.WriteString(helpHeader)
	for _, d := range h.registry.Descriptors() {
		sb.WriteString("\t - ")
		sb.WriteString(d.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}
