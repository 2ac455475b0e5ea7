package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"slipbot/internal/domain"
)

const slackMaxMsgLen = 4000

// Slack reacts with emoji names rather than glyphs.
var slackReactions = map[string]string{
	domain.GlyphPrinted: "printer",
	domain.GlyphAlert:   "exclamation",
	domain.GlyphFailure: "x",
}

// Slack implements domain.Channel for Slack using Socket Mode. Only message
// text is forwarded; file attachments are ignored.
type Slack struct {
	botToken string
	appToken string
	allow    AllowList
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Allow    AllowList
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		allow:    cfg.Allow,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and begins listening for events.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	s.bus = bus

	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)
	s.client = api

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnOutbound("slack", s.handleOutbound)

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error { return nil }

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Ignore the bot's own messages and edits.
		if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		s.publish(ev.Channel, ev.User, ev.TimeStamp, ev.Text)

	case *slackevents.AppMentionEvent:
		content := ev.Text
		if idx := strings.Index(content, ">"); idx >= 0 {
			content = strings.TrimSpace(content[idx+1:])
		}
		s.publish(ev.Channel, ev.User, ev.TimeStamp, content)
	}
}

func (s *Slack) publish(channelID, user, ts, text string) {
	if !s.allow.Allowed(user) {
		s.logger.Warn("unauthorized slack user", "user", user)
		return
	}
	s.logger.Info("slack message received",
		"user", user,
		"channel", channelID,
		"content_len", len(text),
	)
	s.bus.Publish(domain.IncomingMessage{
		Channel:   "slack",
		ChatID:    channelID,
		SenderID:  user,
		MessageID: ts,
		Text:      text,
		Timestamp: slackMillis(ts),
	})
}

// slackMillis converts a Slack message timestamp ("1700000000.000100") to
// epoch milliseconds.
func slackMillis(ts string) int64 {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return 0
	}
	return int64(f * 1000)
}

func (s *Slack) handleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	switch msg.Kind {
	case domain.OutboundText:
		for _, chunk := range splitMessage(msg.Content, slackMaxMsgLen) {
			_, _, err := s.client.PostMessageContext(ctx,
				msg.ChatID,
				slack.MsgOptionText(chunk, false),
				slack.MsgOptionAsUser(true),
			)
			if err != nil {
				return fmt.Errorf("slack send: %w", err)
			}
		}
		return nil
	case domain.OutboundReaction:
		if msg.Target == nil {
			return fmt.Errorf("slack reaction without target")
		}
		name, ok := slackReactions[msg.Content]
		if !ok {
			return fmt.Errorf("slack: no emoji name for %q", msg.Content)
		}
		if err := s.client.AddReactionContext(ctx, name, slack.NewRefToMessage(msg.ChatID, msg.Target.MessageID)); err != nil {
			return fmt.Errorf("slack reaction: %w", err)
		}
		return nil
	case domain.OutboundReceipt:
		return nil
	default:
		return fmt.Errorf("slack: unsupported outbound kind %q", msg.Kind)
	}
}
