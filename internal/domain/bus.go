package domain

import "context"

// MessageBus carries inbound messages from channels to the dispatcher and
// routes outbound actions back to the channel that owns the chat.
type MessageBus interface {
	Publish(msg IncomingMessage)
	Subscribe() <-chan IncomingMessage
	SendOutbound(ctx context.Context, msg OutboundMessage) error
	OnOutbound(channelName string, handler OutboundHandler)
	Close()
}

// OutboundHandler delivers one outbound action on a channel.
type OutboundHandler func(ctx context.Context, msg OutboundMessage) error

// Responder is the reply surface handed to commands.
type Responder interface {
	Reply(ctx context.Context, to IncomingMessage, text string) error
	React(ctx context.Context, to IncomingMessage, glyph string) error
	MarkRead(ctx context.Context, msg IncomingMessage) error
}
