// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in VetBot.
//
// It provides methods for sending text, location and contact messages and for
// marking inbound messages as read over a linked WhatsApp Web device.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for WhatsApp/whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/vetbot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// WhatsAppSender is an interface for sending WhatsApp messages (for production and testing)
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendLocation(ctx context.Context, to string, loc models.Location) error
	SendContact(ctx context.Context, to string, card models.ContactCard) error
	MarkRead(ctx context.Context, from, messageID string) error
}

// Opts holds configuration options for the WhatsApp client.
// This focuses solely on WhatsApp/whatsmeow database configuration and login settings.
type Opts struct {
	DBDSN       string // WhatsApp/whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the WhatsApp/whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the WhatsApp client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the WhatsApp client to use numeric login code instead of QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use
type Client struct {
	waClient *whatsmeow.Client
}

// driverForDSN picks the whatsmeow sqlstore driver and warns about SQLite DSNs
// without foreign keys.
func driverForDSN(dsn string) string {
	if store.DetectDSNType(dsn) == store.DSNTypePostgres {
		slog.Debug("WhatsApp client auto-detected PostgreSQL driver", "dsn_type", "postgresql")
		return store.DSNTypePostgres
	}
	slog.Debug("WhatsApp client auto-detected SQLite driver", "dsn_type", "sqlite")
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"The whatsmeow library strongly recommends enabling foreign keys for data integrity. "+
			"Consider adding '?_foreign_keys=on' to your connection string.",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return store.DSNTypeSQLite
}

// NewClient creates a new WhatsApp client, applying any provided options for customization.
// When the device store holds no session the login QR code (or numeric code) is written
// to stdout or to the configured QR path.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	dbDriver := driverForDSN(dbDSN)

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver)
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID != nil {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
		slog.Info("WhatsApp client connected successfully")
		return &Client{waClient: waClient}, nil
	}

	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open WhatsApp QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, ferr := os.Create(cfg.QRPath)
		if ferr != nil {
			slog.Error("Failed to create QR file", "error", ferr)
			return nil, fmt.Errorf("failed to create QR file: %w", ferr)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("WhatsApp login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

func (c *Client) ready() error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client store not available")
	}
	return nil
}

func (c *Client) send(ctx context.Context, to string, msg *waE2E.Message) error {
	if err := c.ready(); err != nil {
		return err
	}
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if _, err := c.waClient.SendMessage(ctx, types.NewJID(to, JIDSuffix), msg); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendMessage sends a WhatsApp text message to the specified recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if body == "" {
		return models.ErrEmptyBody
	}
	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	return c.send(ctx, to, &waE2E.Message{Conversation: proto.String(body)})
}

// SendLocation sends a location pin.
func (c *Client) SendLocation(ctx context.Context, to string, loc models.Location) error {
	slog.Debug("Sending WhatsApp location", "to", to, "name", loc.Name)
	return c.send(ctx, to, &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
		DegreesLatitude:  proto.Float64(loc.Latitude),
		DegreesLongitude: proto.Float64(loc.Longitude),
		Name:             proto.String(loc.Name),
		Address:          proto.String(loc.Address),
	}})
}

// SendContact sends a contact card encoded as a vCard.
func (c *Client) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	slog.Debug("Sending WhatsApp contact", "to", to, "name", card.FormattedName)
	return c.send(ctx, to, &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
		DisplayName: proto.String(card.FormattedName),
		Vcard:       proto.String(BuildVCard(card)),
	}})
}

// MarkRead sends a read receipt for a message received in a one-to-one chat.
func (c *Client) MarkRead(ctx context.Context, from, messageID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	chat := types.NewJID(from, JIDSuffix)
	// The sender JID is only required for group chats.
	if err := c.waClient.MarkRead([]types.MessageID{messageID}, time.Now(), chat, types.EmptyJID); err != nil {
		return fmt.Errorf("failed to mark message %s as read: %w", messageID, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// BuildVCard renders card as a vCard 3.0 document.
func BuildVCard(card models.ContactCard) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCARD\nVERSION:3.0\n")
	fmt.Fprintf(&b, "N:%s;%s;;;\n", card.LastName, card.FirstName)
	fmt.Fprintf(&b, "FN:%s\n", card.FormattedName)
	if card.Organization != "" {
		fmt.Fprintf(&b, "ORG:%s\n", card.Organization)
	}
	if card.WaID != "" {
		fmt.Fprintf(&b, "TEL;type=CELL;waid=%s:%s\n", card.WaID, card.Phone)
	} else {
		fmt.Fprintf(&b, "TEL;type=CELL:%s\n", card.Phone)
	}
	if card.Email != "" {
		fmt.Fprintf(&b, "EMAIL:%s\n", card.Email)
	}
	if card.URL != "" {
		fmt.Fprintf(&b, "URL:%s\n", card.URL)
	}
	if card.Address != "" {
		fmt.Fprintf(&b, "ADR;type=WORK:;;%s;;;;\n", card.Address)
	}
	b.WriteString("END:VCARD")
	return b.String()
}

var _ WhatsAppSender = (*Client)(nil)

// MockClient records every call instead of talking to WhatsApp.
// In tests, use whatsapp.NewMockClient() instead of NewClient to avoid real WhatsApp connections.
type MockClient struct {
	mu        sync.Mutex
	Err       error
	Messages  []SentMessage
	Locations []models.Location
	Contacts  []models.ContactCard
	Reads     []string
}

// SentMessage is a text message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
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
	m.Messages = append(m.Messages, SentMessage{To: to, Body: body})
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

func (m *MockClient) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Contacts = append(m.Contacts, card)
	return nil
}

func (m *MockClient) MarkRead(ctx context.Context, from, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Reads = append(m.Reads, messageID)
	return nil
}

// SentBodies returns a copy of the captured text bodies.
func (m *MockClient) SentBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Messages))
	for _, msg := range m.Messages {
		out = append(out, msg.Body)
	}
	return out
}

var _ WhatsAppSender = (*MockClient)(nil)
