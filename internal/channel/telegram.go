package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"slipbot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxFileSize    = 20 << 20
)

// Telegram only accepts reactions from a fixed emoji set, so the bot's
// glyphs are mapped onto the closest allowed ones.
var telegramReactions = map[string]string{
	domain.GlyphPrinted: "👌",
	domain.GlyphAlert:   "🤔",
	domain.GlyphFailure: "👎",
}

// Telegram implements domain.Channel for a Telegram bot.
type Telegram struct {
	token  string
	allow  AllowList
	client *http.Client

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	Allow  AllowList
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.Token,
		allow:  cfg.Allow,
		client: newHTTPClient(60 * time.Second),
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", t.handleOutbound)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: StopReceivingUpdates is called when Start's context is
// cancelled and panics if called twice.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}
	switch msg.Kind {
	case domain.OutboundText:
		return t.sendMessage(chatID, msg.Content)
	case domain.OutboundReaction:
		if msg.Target == nil {
			return fmt.Errorf("telegram reaction without target")
		}
		return t.react(chatID, msg.Target.MessageID, msg.Content)
	case domain.OutboundReceipt:
		// bots cannot send read receipts
		return nil
	default:
		return fmt.Errorf("telegram: unsupported outbound kind %q", msg.Kind)
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return
	}

	userID := strconv.FormatInt(m.From.ID, 10)
	if !t.allow.Allowed(userID, m.From.UserName) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", m.From.UserName,
		)
		return
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}

	msg := domain.IncomingMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  userID,
		MessageID: strconv.Itoa(m.MessageID),
		Text:      text,
		Timestamp: int64(m.Date) * 1000,
	}
	msg.Attachments = t.attachments(ctx, m)

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", msg.ChatID,
		"text_len", len(text),
		"attachments", len(msg.Attachments),
	)
	t.bus.Publish(msg)
}

// attachments downloads the largest size of an attached photo and any
// attached document.
func (t *Telegram) attachments(ctx context.Context, m *tgbotapi.Message) []domain.Attachment {
	var out []domain.Attachment
	if n := len(m.Photo); n > 0 {
		p := m.Photo[n-1]
		if data, err := t.download(ctx, p.FileID); err != nil {
			t.logger.Warn("telegram photo download failed", "err", err)
		} else {
			out = append(out, domain.Attachment{Filename: p.FileUniqueID + ".jpg", Data: data})
		}
	}
	if d := m.Document; d != nil {
		if data, err := t.download(ctx, d.FileID); err != nil {
			t.logger.Warn("telegram document download failed", "file", d.FileName, "err", err)
		} else {
			out = append(out, domain.Attachment{Filename: d.FileName, Data: data})
		}
	}
	return out
}

func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	link, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	resp, err := doWithRetry(ctx, t.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	}, t.logger)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, telegramMaxFileSize))
}

func (t *Telegram) react(chatID int64, messageID, glyph string) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", messageID, err)
	}
	emoji, ok := telegramReactions[glyph]
	if !ok {
		emoji = glyph
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", id)
	if err := params.AddInterface("reaction", []map[string]string{{"type": "emoji", "emoji": emoji}}); err != nil {
		return err
	}
	if _, err := t.bot.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("telegram reaction: %w", err)
	}
	return nil
}

func (t *Telegram) sendMessage(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends a single message chunk, backing off on rate limits and
// transient errors.
func (t *Telegram) sendChunk(chatID int64, text string) error {
	var err error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return nil
		}

		errStr := err.Error()
		backoff := time.Duration(attempt+1) * time.Second
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			backoff *= 3
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", backoff, "attempt", attempt+1,
			)
		} else {
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		}
		if attempt < telegramMaxSendRetries {
			time.Sleep(backoff)
		}
	}
	t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	return fmt.Errorf("telegram send: %w", err)
}
