package domain

// Attachment is a file delivered alongside a chat message.
type Attachment struct {
	Filename string
	Data     []byte
}

// IncomingMessage is one inbound chat message. It is read-only once a
// channel has published it.
type IncomingMessage struct {
	Channel     string
	ChatID      string
	SenderID    string
	MessageID   string // channel-native id used to target reactions and receipts
	Text        string
	Timestamp   int64 // epoch milliseconds, as supplied by the sender
	Attachments []Attachment
}

// OutboundKind selects what an OutboundMessage asks the channel to do.
type OutboundKind string

const (
	OutboundText     OutboundKind = "text"
	OutboundReaction OutboundKind = "reaction"
	OutboundReceipt  OutboundKind = "receipt"
)

type OutboundMessage struct {
	Channel string
	ChatID  string
	Kind    OutboundKind
	Content string           // reply text or reaction glyph
	Target  *IncomingMessage // message being reacted to or marked read
}

// Reaction glyphs.
const (
	GlyphPrinted = "🖨"
	GlyphAlert   = "❗"
	GlyphFailure = "❌"
)
