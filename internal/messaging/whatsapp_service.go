package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
// Buttons are rendered as numbered text.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // Access to underlying client for event handling
	menus    *menuMemory
	inbox    *inbox
	handler  uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		menus:  newMenuMemory(),
		inbox:  newInbox("WhatsAppService"),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// Name implements Service.
func (s *WhatsAppService) Name() string { return "whatsmeow" }

// ValidateAndCanonicalizeRecipient implements Service.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("WhatsAppService", recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handler = s.waClient.GetClient().AddEventHandler(s.handleEvent)
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop removes the event handler, disconnects and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handler != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handler)
	}
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	s.inbox.close()
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// Responses implements Service.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage { return s.inbox.responses }

func (s *WhatsAppService) canonical(to string) (string, error) {
	if s.inbox.isStopped() {
		return "", ErrServiceStopped
	}
	return s.ValidateAndCanonicalizeRecipient(to)
}

// SendText sends a text message. Quoting is not supported; inReplyTo is only logged.
func (s *WhatsAppService) SendText(ctx context.Context, to, body, inReplyTo string) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	slog.Debug("WhatsAppService SendText invoked", "to", canonicalTo, "body_length", len(body), "inReplyTo", inReplyTo)
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

// SendInteractiveButtons sends body followed by a numbered option list and
// remembers it for numeric replies.
func (s *WhatsAppService) SendInteractiveButtons(ctx context.Context, to, body string, buttons []models.Button) error {
	if err := models.ValidateButtons(buttons); err != nil {
		return err
	}
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, RenderButtons(body, buttons)); err != nil {
		slog.Error("WhatsAppService SendInteractiveButtons error", "error", err, "to", canonicalTo)
		return err
	}
	s.menus.remember(canonicalTo, buttons)
	return nil
}

// SendMedia sends the media link as text, prefixed by the caption.
func (s *WhatsAppService) SendMedia(ctx context.Context, to string, kind models.MediaKind, url, caption string) error {
	if !models.IsValidMediaKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, kind)
	}
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	body := url
	if caption != "" {
		body = caption + "\n" + url
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendContact implements Service.
func (s *WhatsAppService) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	return s.client.SendContact(ctx, canonicalTo, card)
}

// SendLocation implements Service.
func (s *WhatsAppService) SendLocation(ctx context.Context, to string, loc models.Location) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	return s.client.SendLocation(ctx, canonicalTo, loc)
}

// MarkRead implements Service.
func (s *WhatsAppService) MarkRead(ctx context.Context, from, messageID string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	return s.client.MarkRead(ctx, from, messageID)
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Receipt:
		slog.Debug("WhatsAppService receipt", "from", v.MessageSource.Sender.User, "type", v.Type, "count", len(v.MessageIDs))
	default:
		slog.Debug("WhatsAppService ignoring event type", "type", getEventType(v))
	}
}

// handleIncomingMessage converts one-to-one user messages into inbound messages.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	from := strings.TrimPrefix(evt.Info.Sender.User, "+")
	profile := &models.SenderProfile{DisplayName: evt.Info.PushName, AccountID: from}
	ts := evt.Info.Timestamp.Unix()

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = evt.Message.ExtendedTextMessage.GetText()
	default:
		s.inbox.emit(models.InboundMessage{
			SenderID:  from,
			MessageID: evt.Info.ID,
			Type:      models.MessageTypeOther,
			Profile:   profile,
			Timestamp: ts,
		})
		return
	}
	s.inbox.emit(s.menus.textInbound(from, evt.Info.ID, text, profile, ts))
}

// getEventType returns a string representation of the event type for logging
func getEventType(evt interface{}) string {
	switch evt.(type) {
	case *events.Message:
		return "Message"
	case *events.Receipt:
		return "Receipt"
	case *events.Presence:
		return "Presence"
	case *events.Connected:
		return "Connected"
	case *events.Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

var _ Service = (*WhatsAppService)(nil)
