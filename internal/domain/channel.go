package domain

import "context"

// Channel is a chat transport (Signal, Telegram, Discord, Slack, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
