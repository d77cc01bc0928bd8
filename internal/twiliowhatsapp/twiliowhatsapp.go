// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in VetBot.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix marks WhatsApp addresses in Twilio's From/To fields.
const AddressPrefix = "whatsapp:"

// TwilioWhatsAppSender sends WhatsApp messages through Twilio.
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to string, mediaURL string, caption string) error
	SendLocation(ctx context.Context, to string, loc models.Location) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient builds a Client, falling back to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN
// and TWILIO_FROM_NUMBER for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Client{
		client:    client,
		fromWhats: Address(cfg.FromWhats),
	}, nil
}

// Address returns number in Twilio's whatsapp:+E164 form.
func Address(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), AddressPrefix)
	if number != "" && !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return AddressPrefix + number
}

// StripAddress turns a Twilio whatsapp:+E164 address back into bare digits.
func StripAddress(addr string) string {
	return strings.TrimPrefix(strings.TrimPrefix(addr, AddressPrefix), "+")
}

func (c *Client) create(to string, configure func(*twilioApi.CreateMessageParams)) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	configure(params)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio CreateMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// SendMessage sends a WhatsApp text message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if body == "" {
		return models.ErrEmptyBody
	}
	return c.create(to, func(p *twilioApi.CreateMessageParams) { p.SetBody(body) })
}

// SendMedia sends a message with a single media attachment and an optional caption.
func (c *Client) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	return c.create(to, func(p *twilioApi.CreateMessageParams) {
		p.SetMediaUrl([]string{mediaURL})
		if caption != "" {
			p.SetBody(caption)
		}
	})
}

// SendLocation sends a location pin through Twilio's geo persistent action.
func (c *Client) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return c.create(to, func(p *twilioApi.CreateMessageParams) {
		p.SetBody(LocationBody(loc))
		p.SetPersistentAction([]string{GeoAction(loc)})
	})
}

// GeoAction renders loc as a Twilio geo: persistent action.
func GeoAction(loc models.Location) string {
	return fmt.Sprintf("geo:%s,%s|%s",
		strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		loc.Name)
}

// LocationBody is the text shown alongside a location pin.
func LocationBody(loc models.Location) string {
	if loc.Address == "" {
		return loc.Name
	}
	return loc.Name + "\n" + loc.Address
}

var _ TwilioWhatsAppSender = (*Client)(nil)

// MockClient records sends instead of calling Twilio.
type MockClient struct {
	mu           sync.Mutex
	Err          error
	SentMessages []SentMessage
	MediaSends   []MediaSend
	Locations    []models.Location
}

type SentMessage struct {
	To   string
	Body string
}

type MediaSend struct {
	To      string
	URL     string
	Caption string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.MediaSends = append(m.MediaSends, MediaSend{To: to, URL: mediaURL, Caption: caption})
	return nil
}

func (m *MockClient) SendLocation(ctx context.Context, to string, loc models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Locations = append(m.Locations, loc)
	return nil
}

// Sent returns a copy of the captured text messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}

// Bodies returns a copy of the captured text bodies.
func (m *MockClient) Bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.SentMessages))
	for _, s := range m.SentMessages {
		out = append(out, s.Body)
	}
	return out
}

var _ TwilioWhatsAppSender = (*MockClient)(nil)
