package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/twiliowhatsapp"
	twilioclient "github.com/twilio/twilio-go/client"
)

// TwilioSignatureHeader carries the Twilio request signature.
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioServiceOption configures a TwilioService.
type TwilioServiceOption func(*TwilioService)

// WithTwilioSignatureValidation rejects webhook requests whose X-Twilio-Signature
// does not match publicURL signed with authToken.
func WithTwilioSignatureValidation(authToken, publicURL string) TwilioServiceOption {
	return func(s *TwilioService) {
		if authToken == "" || publicURL == "" {
			return
		}
		v := twilioclient.NewRequestValidator(authToken)
		s.validator = &v
		s.publicURL = publicURL
	}
}

// TwilioService implements the Service interface using Twilio API.
// Buttons are rendered as numbered text and read receipts are not supported.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender // Could be real Twilio client or MockClient
	menus     *menuMemory
	inbox     *inbox
	validator *twilioclient.RequestValidator
	publicURL string
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioServiceOption) *TwilioService {
	s := &TwilioService{
		client: client,
		menus:  newMenuMemory(),
		inbox:  newInbox("TwilioService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Service.
func (s *TwilioService) Name() string { return "twilio" }

// ValidateAndCanonicalizeRecipient implements Service.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("TwilioService", twiliowhatsapp.StripAddress(recipient))
}

// Start is a no-op for Twilio; inbound messages arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the responses channel.
func (s *TwilioService) Stop() error {
	s.inbox.close()
	slog.Info("TwilioService stopped")
	return nil
}

// Responses implements Service.
func (s *TwilioService) Responses() <-chan models.InboundMessage { return s.inbox.responses }

func (s *TwilioService) canonical(to string) (string, error) {
	if s.inbox.isStopped() {
		return "", ErrServiceStopped
	}
	return s.ValidateAndCanonicalizeRecipient(to)
}

// SendText sends a text message via Twilio. Quoting is not supported.
func (s *TwilioService) SendText(ctx context.Context, to, body, inReplyTo string) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendInteractiveButtons sends body with a numbered option list.
func (s *TwilioService) SendInteractiveButtons(ctx context.Context, to, body string, buttons []models.Button) error {
	if err := models.ValidateButtons(buttons); err != nil {
		return err
	}
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, RenderButtons(body, buttons)); err != nil {
		return err
	}
	s.menus.remember(canonicalTo, buttons)
	return nil
}

// SendMedia sends a single attachment by URL.
func (s *TwilioService) SendMedia(ctx context.Context, to string, kind models.MediaKind, url, caption string) error {
	if !models.IsValidMediaKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, kind)
	}
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	if kind == models.MediaKindAudio {
		caption = ""
	}
	return s.client.SendMedia(ctx, canonicalTo, url, caption)
}

// SendContact sends the contact card as text.
func (s *TwilioService) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, ContactText(card))
}

// SendLocation implements Service.
func (s *TwilioService) SendLocation(ctx context.Context, to string, loc models.Location) error {
	canonicalTo, err := s.canonical(to)
	if err != nil {
		return err
	}
	return s.client.SendLocation(ctx, canonicalTo, loc)
}

// MarkRead is a no-op; Twilio does not expose WhatsApp read receipts.
func (s *TwilioService) MarkRead(ctx context.Context, from, messageID string) error {
	slog.Debug("TwilioService MarkRead ignored (unsupported)", "from", from, "messageID", messageID)
	return nil
}

// ContactText renders card for transports without contact messages.
func ContactText(card models.ContactCard) string {
	lines := []string{card.FormattedName, card.Phone}
	if card.Email != "" {
		lines = append(lines, card.Email)
	}
	if card.URL != "" {
		lines = append(lines, card.URL)
	}
	return strings.Join(lines, "\n")
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits the
// message on Responses.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.TwilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.publicURL, params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("TwilioService.TwilioWebhookHandler: signature mismatch", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := twiliowhatsapp.StripAddress(r.FormValue("From"))
	body := r.FormValue("Body")
	sid := r.FormValue("MessageSid")
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))

	if from == "" || sid == "" {
		slog.Warn("TwilioService.TwilioWebhookHandler: missing fields", "from", from, "sid", sid)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	profile := &models.SenderProfile{DisplayName: r.FormValue("ProfileName"), AccountID: r.FormValue("WaId")}
	ts := models.Now().Unix()

	var msg models.InboundMessage
	if body == "" || numMedia > 0 {
		msg = models.InboundMessage{SenderID: from, MessageID: sid, Type: models.MessageTypeOther, Text: body, Profile: profile, Timestamp: ts}
	} else {
		msg = s.menus.textInbound(from, sid, body, profile, ts)
	}
	slog.Info("TwilioService inbound message", "from", from, "messageID", sid, "type", msg.Type)
	s.inbox.emit(msg)

	// Empty TwiML: replies are sent through the REST API.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}

var _ Service = (*TwilioService)(nil)
