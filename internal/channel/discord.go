package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"slipbot/internal/domain"
)

const (
	discordMaxMsgLen   = 2000
	discordMaxFileSize = 25 << 20
)

// Discord implements domain.Channel for Discord.
type Discord struct {
	token   string
	guildID string
	allow   AllowList
	client  *http.Client
	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	GuildID string // optional: only accept messages from this guild
	Allow   AllowList
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		allow:   cfg.Allow,
		client:  newHTTPClient(60 * time.Second),
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and listens until ctx is done.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	bus.OnOutbound("discord", d.handleOutbound)

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessage(ctx, s, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) Stop() error { return nil }

func (d *Discord) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if d.guildID != "" && m.GuildID != d.guildID {
		return
	}
	if !d.allow.Allowed(m.Author.ID, m.Author.Username) {
		d.logger.Warn("unauthorized discord user", "user_id", m.Author.ID, "username", m.Author.Username)
		return
	}

	msg := domain.IncomingMessage{
		Channel:   "discord",
		ChatID:    m.ChannelID,
		SenderID:  m.Author.ID,
		MessageID: m.ID,
		Text:      m.Content,
		Timestamp: m.Timestamp.UnixMilli(),
	}
	for _, a := range m.Attachments {
		data, err := d.download(ctx, a.URL)
		if err != nil {
			d.logger.Warn("discord attachment download failed", "file", a.Filename, "err", err)
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{Filename: a.Filename, Data: data})
	}

	d.logger.Info("discord message received",
		"author", m.Author.Username,
		"channel_id", m.ChannelID,
		"content_len", len(m.Content),
		"attachments", len(msg.Attachments),
	)
	d.bus.Publish(msg)
}

func (d *Discord) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := doWithRetry(ctx, d.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, d.logger)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, discordMaxFileSize))
}

func (d *Discord) handleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	switch msg.Kind {
	case domain.OutboundText:
		for _, chunk := range splitMessage(msg.Content, discordMaxMsgLen) {
			if _, err := d.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
				return fmt.Errorf("discord send: %w", err)
			}
		}
		return nil
	case domain.OutboundReaction:
		if msg.Target == nil {
			return fmt.Errorf("discord reaction without target")
		}
		if err := d.session.MessageReactionAdd(msg.ChatID, msg.Target.MessageID, msg.Content); err != nil {
			return fmt.Errorf("discord reaction: %w", err)
		}
		return nil
	case domain.OutboundReceipt:
		return nil
	default:
		return fmt.Errorf("discord: unsupported outbound kind %q", msg.Kind)
	}
}
