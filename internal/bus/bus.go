package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slipbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process communication.
// It also implements domain.Responder by turning replies, reactions and read
// receipts into outbound messages for the originating channel.
type InMemoryBus struct {
	inbound  chan domain.IncomingMessage
	handlers map[string]domain.OutboundHandler
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

var _ domain.MessageBus = (*InMemoryBus)(nil)
var _ domain.Responder = (*InMemoryBus)(nil)

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.IncomingMessage, bufferSize),
		handlers: make(map[string]domain.OutboundHandler),
		logger:   logger,
	}
}

// Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.IncomingMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", msg.Channel, "sender", msg.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel", msg.Channel)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"channel", msg.Channel,
				"sender", msg.SenderID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.IncomingMessage {
	return b.inbound
}

// SendOutbound delivers msg through the handler registered for its channel.
func (b *InMemoryBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for channel", "channel", msg.Channel)
		return fmt.Errorf("no outbound handler for channel %q", msg.Channel)
	}
	return handler(ctx, msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler domain.OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}

func (b *InMemoryBus) Reply(ctx context.Context, to domain.IncomingMessage, text string) error {
	return b.SendOutbound(ctx, domain.OutboundMessage{
		Channel: to.Channel,
		ChatID:  to.ChatID,
		Kind:    domain.OutboundText,
		Content: text,
	})
}

func (b *InMemoryBus) React(ctx context.Context, to domain.IncomingMessage, glyph string) error {
	return b.SendOutbound(ctx, domain.OutboundMessage{
		Channel: to.Channel,
		ChatID:  to.ChatID,
		Kind:    domain.OutboundReaction,
		Content: glyph,
		Target:  &to,
	})
}

func (b *InMemoryBus) MarkRead(ctx context.Context, msg domain.IncomingMessage) error {
	return b.SendOutbound(ctx, domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Kind:    domain.OutboundReceipt,
		Target:  &msg,
	})
}
