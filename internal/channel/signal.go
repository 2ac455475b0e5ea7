package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"slipbot/internal/domain"
)

const (
	signalMaxAttachment = 32 << 20
	signalReconnectMin  = time.Second
	signalReconnectMax  = time.Minute
)

// Signal implements domain.Channel on top of a signal-cli-rest-api
// instance running in json-rpc mode. Messages arrive over the receive
// websocket; replies, reactions and receipts go out over REST.
type Signal struct {
	baseURL *url.URL
	number  string
	allow   AllowList
	client  *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger

	bus domain.MessageBus
}

// SignalConfig configures the Signal channel.
type SignalConfig struct {
	URL        string // signal-cli-rest-api base URL, e.g. http://localhost:8080
	Number     string // the bot's registered phone number
	Allow      AllowList
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewSignal(cfg SignalConfig) (*Signal, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("signal url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("signal url %q: scheme must be http or https", cfg.URL)
	}
	if cfg.Number == "" {
		return nil, fmt.Errorf("signal: number is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(30 * time.Second)
	}
	return &Signal{
		baseURL: u,
		number:  cfg.Number,
		allow:   cfg.Allow,
		client:  client,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  cfg.Logger,
	}, nil
}

func (s *Signal) Name() string { return "signal" }

// Start registers the outbound handler and receives until ctx is done,
// reconnecting with backoff when the websocket drops.
func (s *Signal) Start(ctx context.Context, bus domain.MessageBus) error {
	s.bus = bus
	bus.OnOutbound("signal", s.handleOutbound)

	backoff := signalReconnectMin
	for {
		connected, err := s.receive(ctx)
		if ctx.Err() != nil {
			s.logger.Info("signal channel stopping")
			return nil
		}
		if connected {
			backoff = signalReconnectMin
		}
		s.logger.Warn("signal receive stream closed, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, signalReconnectMax)
	}
}

func (s *Signal) Stop() error { return nil }

// receive reads envelopes from one websocket connection. connected reports
// whether the handshake succeeded.
func (s *Signal) receive(ctx context.Context) (connected bool, err error) {
	wsURL := s.wsURL("/v1/receive/" + s.number)
	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	s.logger.Info("signal connected", "number", s.number)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var env signalEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("invalid signal envelope", "err", err)
			continue
		}
		msg, ok := s.toMessage(ctx, env)
		if !ok {
			continue
		}
		s.bus.Publish(msg)
	}
}

type signalEnvelope struct {
	Envelope struct {
		Source       string             `json:"source"`
		SourceNumber string             `json:"sourceNumber"`
		SourceUUID   string             `json:"sourceUuid"`
		SourceName   string             `json:"sourceName"`
		Timestamp    int64              `json:"timestamp"`
		DataMessage  *signalDataMessage `json:"dataMessage"`
	} `json:"envelope"`
	Account string `json:"account"`
}

type signalDataMessage struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
	GroupInfo *struct {
		GroupID string `json:"groupId"`
	} `json:"groupInfo"`
	Attachments []signalAttachment `json:"attachments"`
}

type signalAttachment struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	ID          string `json:"id"`
	Size        int64  `json:"size"`
}

func (s *Signal) toMessage(ctx context.Context, env signalEnvelope) (domain.IncomingMessage, bool) {
	e := env.Envelope
	dm := e.DataMessage
	if dm == nil {
		// receipts, typing indicators and sync messages
		return domain.IncomingMessage{}, false
	}

	sender := e.SourceNumber
	if sender == "" {
		sender = e.Source
	}
	if sender == "" {
		sender = e.SourceUUID
	}
	if !s.allow.Allowed(sender, e.SourceUUID, e.Source) {
		s.logger.Warn("unauthorized signal sender", "sender", sender, "name", e.SourceName)
		return domain.IncomingMessage{}, false
	}

	ts := dm.Timestamp
	if ts == 0 {
		ts = e.Timestamp
	}
	chatID := sender
	if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
		chatID = signalGroupRecipient(dm.GroupInfo.GroupID)
	}

	msg := domain.IncomingMessage{
		Channel:   "signal",
		ChatID:    chatID,
		SenderID:  sender,
		MessageID: strconv.FormatInt(ts, 10),
		Text:      dm.Message,
		Timestamp: ts,
	}
	for _, a := range dm.Attachments {
		data, err := s.fetchAttachment(ctx, a.ID)
		if err != nil {
			s.logger.Warn("signal attachment download failed", "id", a.ID, "err", err)
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename: signalAttachmentName(a),
			Data:     data,
		})
	}

	s.logger.Info("signal message received",
		"sender", sender,
		"chat", chatID,
		"text_len", len(msg.Text),
		"attachments", len(msg.Attachments),
	)
	return msg, true
}

// signalGroupRecipient converts the internal group id found in envelopes
// into the id the REST API expects as a recipient.
func signalGroupRecipient(internalID string) string {
	return "group." + base64.StdEncoding.EncodeToString([]byte(internalID))
}

// signalAttachmentName prefers the sender's filename; stored attachment ids
// carry the extension otherwise.
func signalAttachmentName(a signalAttachment) string {
	if a.Filename != "" {
		return a.Filename
	}
	return a.ID
}

func (s *Signal) fetchAttachment(ctx context.Context, id string) ([]byte, error) {
	resp, err := doWithRetry(ctx, s.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, s.restURL("/v1/attachments/"+id), nil)
	}, s.logger)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, signalMaxAttachment+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > signalMaxAttachment {
		return nil, fmt.Errorf("attachment larger than %s", humanize.IBytes(signalMaxAttachment))
	}
	return data, nil
}

func (s *Signal) handleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	switch msg.Kind {
	case domain.OutboundText:
		return s.send(ctx, msg.ChatID, msg.Content)
	case domain.OutboundReaction:
		if msg.Target == nil {
			return fmt.Errorf("signal reaction without target")
		}
		return s.post(ctx, "/v1/reactions/"+s.number, signalReaction{
			Reaction:     msg.Content,
			Recipient:    msg.ChatID,
			TargetAuthor: msg.Target.SenderID,
			Timestamp:    msg.Target.Timestamp,
		})
	case domain.OutboundReceipt:
		if msg.Target == nil {
			return fmt.Errorf("signal receipt without target")
		}
		return s.post(ctx, "/v1/receipts/"+s.number, signalReceipt{
			ReceiptType: "read",
			Recipient:   msg.Target.SenderID,
			Timestamp:   msg.Target.Timestamp,
		})
	default:
		return fmt.Errorf("signal: unsupported outbound kind %q", msg.Kind)
	}
}

type signalSend struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}

type signalReaction struct {
	Reaction     string `json:"reaction"`
	Recipient    string `json:"recipient"`
	TargetAuthor string `json:"target_author"`
	Timestamp    int64  `json:"timestamp"`
}

type signalReceipt struct {
	ReceiptType string `json:"receipt_type"`
	Recipient   string `json:"recipient"`
	Timestamp   int64  `json:"timestamp"`
}

func (s *Signal) send(ctx context.Context, chatID, content string) error {
	return s.post(ctx, "/v2/send", signalSend{
		Message:    content,
		Number:     s.number,
		Recipients: []string{chatID},
	})
}

func (s *Signal) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	resp, err := doWithRetry(ctx, s.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.restURL(path), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, s.logger)
	if err != nil {
		return fmt.Errorf("signal %s: %w", path, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (s *Signal) restURL(path string) string {
	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	return u.String()
}

func (s *Signal) wsURL(path string) string {
	u := *s.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}
