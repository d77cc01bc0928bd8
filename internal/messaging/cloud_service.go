package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

// Cloud API defaults
const (
	DefaultCloudBaseURL    = "https://graph.facebook.com"
	DefaultCloudAPIVersion = "v22.0"
	DefaultCloudTimeout    = 15 * time.Second
	// MaxWebhookBodyBytes caps the size of an accepted webhook payload.
	MaxWebhookBodyBytes = 1 << 20
	// SignatureHeader carries the HMAC-SHA256 of the webhook body.
	SignatureHeader = "X-Hub-Signature-256"
	messagingProduct = "whatsapp"
)

var (
	// ErrInvalidSignature is returned when the webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrBusinessIDNotSet is returned by ListTemplates without a business account id.
	ErrBusinessIDNotSet = errors.New("business account id not configured")
)

// CloudOpts configures a CloudService.
type CloudOpts struct {
	BaseURL       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	BusinessID    string
	VerifyToken   string
	AppSecret     string
	HTTPClient    *http.Client
}

// CloudOption defines a configuration option for CloudService.
type CloudOption func(*CloudOpts)

// WithBaseURL overrides the Graph API host.
func WithBaseURL(u string) CloudOption {
	return func(o *CloudOpts) { o.BaseURL = u }
}

// WithAPIVersion sets the Graph API version segment, e.g. "v22.0".
func WithAPIVersion(v string) CloudOption {
	return func(o *CloudOpts) { o.APIVersion = v }
}

// WithAccessToken sets the bearer token.
func WithAccessToken(token string) CloudOption {
	return func(o *CloudOpts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) CloudOption {
	return func(o *CloudOpts) { o.PhoneNumberID = id }
}

// WithBusinessID sets the WhatsApp business account id used for template listing.
func WithBusinessID(id string) CloudOption {
	return func(o *CloudOpts) { o.BusinessID = id }
}

// WithVerifyToken sets the token expected during webhook verification.
func WithVerifyToken(token string) CloudOption {
	return func(o *CloudOpts) { o.VerifyToken = token }
}

// WithAppSecret enables X-Hub-Signature-256 checks on webhook deliveries.
func WithAppSecret(secret string) CloudOption {
	return func(o *CloudOpts) { o.AppSecret = secret }
}

// WithHTTPClient replaces the HTTP client used for Graph API calls.
func WithHTTPClient(c *http.Client) CloudOption {
	return func(o *CloudOpts) { o.HTTPClient = c }
}

// CloudService implements Service over the WhatsApp Cloud API.
type CloudService struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	businessID    string
	verifyToken   string
	appSecret     string
	inbox         *inbox
}

// NewCloudService creates a CloudService. The access token and phone number id are required.
func NewCloudService(opts ...CloudOption) (*CloudService, error) {
	cfg := CloudOpts{BaseURL: DefaultCloudBaseURL, APIVersion: DefaultCloudAPIVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("access token and phone number id must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultCloudTimeout}
	}
	if cfg.VerifyToken == "" {
		slog.Warn("CloudService created without a webhook verify token; GET /webhook will reject every request")
	}
	slog.Debug("CloudService created", "baseURL", cfg.BaseURL, "apiVersion", cfg.APIVersion, "signatureCheck", cfg.AppSecret != "")
	return &CloudService{
		httpClient:    cfg.HTTPClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:    cfg.APIVersion,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		businessID:    cfg.BusinessID,
		verifyToken:   cfg.VerifyToken,
		appSecret:     cfg.AppSecret,
		inbox:         newInbox("CloudService"),
	}, nil
}

// Name implements Service.
func (s *CloudService) Name() string { return "cloud" }

// ValidateAndCanonicalizeRecipient implements Service.
func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("CloudService", recipient)
}

// Start is a no-op; inbound messages arrive through WebhookHandler.
func (s *CloudService) Start(ctx context.Context) error { return nil }

// Stop closes the responses channel.
func (s *CloudService) Stop() error {
	s.inbox.close()
	slog.Info("CloudService stopped")
	return nil
}

// Responses implements Service.
func (s *CloudService) Responses() <-chan models.InboundMessage { return s.inbox.responses }

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("whatsapp cloud api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("whatsapp cloud api: status %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// SendResult is the Graph API answer to a message send.
type SendResult struct {
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *CloudService) endpoint(parts ...string) string {
	return s.baseURL + "/" + s.apiVersion + "/" + strings.Join(parts, "/")
}

// do executes req with the bearer token and decodes a JSON answer into out.
func (s *CloudService) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp cloud api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxWebhookBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read whatsapp cloud api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			apiErr = envelope.Error
		}
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode whatsapp cloud api response: %w", err)
	}
	return nil
}

// postMessage sends one payload to the messages endpoint.
func (s *CloudService) postMessage(ctx context.Context, payload map[string]interface{}) (*SendResult, error) {
	if s.inbox.isStopped() {
		return nil, ErrServiceStopped
	}
	payload["messaging_product"] = messagingProduct
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(s.phoneNumberID, "messages"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result SendResult
	if err := s.do(req, &result); err != nil {
		slog.Error("CloudService.postMessage failed", "to", payload["to"], "type", payload["type"], "error", err)
		return nil, err
	}
	return &result, nil
}

// send addresses payload to a canonical individual recipient.
func (s *CloudService) send(ctx context.Context, to, msgType string, payload map[string]interface{}) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload["recipient_type"] = "individual"
	payload["to"] = canonical
	payload["type"] = msgType
	result, err := s.postMessage(ctx, payload)
	if err != nil {
		return err
	}
	if len(result.Messages) > 0 {
		slog.Debug("CloudService message sent", "to", canonical, "type", msgType, "messageID", result.Messages[0].ID)
	}
	return nil
}

// SendText sends a text message, quoting inReplyTo when set.
func (s *CloudService) SendText(ctx context.Context, to, body, inReplyTo string) error {
	if body == "" {
		return models.ErrEmptyBody
	}
	if len(body) > models.MaxTextBodyLength {
		return models.ErrBodyTooLong
	}
	payload := map[string]interface{}{
		"text": map[string]interface{}{"preview_url": false, "body": body},
	}
	if inReplyTo != "" {
		payload["context"] = map[string]string{"message_id": inReplyTo}
	}
	return s.send(ctx, to, "text", payload)
}

// SendInteractiveButtons sends up to three reply buttons.
func (s *CloudService) SendInteractiveButtons(ctx context.Context, to, body string, buttons []models.Button) error {
	if body == "" {
		return models.ErrEmptyBody
	}
	if err := models.ValidateButtons(buttons); err != nil {
		return err
	}
	replies := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	return s.send(ctx, to, "interactive", map[string]interface{}{
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"buttons": replies},
		},
	})
}

// SendMedia sends a media message by link. Audio carries no caption and
// documents are named after the last URL path segment.
func (s *CloudService) SendMedia(ctx context.Context, to string, kind models.MediaKind, url, caption string) error {
	if !models.IsValidMediaKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, kind)
	}
	media := map[string]interface{}{"link": url}
	switch kind {
	case models.MediaKindImage, models.MediaKindVideo:
		if caption != "" {
			media["caption"] = caption
		}
	case models.MediaKindDocument:
		media["filename"] = path.Base(url)
		if caption != "" {
			media["caption"] = caption
		}
	}
	return s.send(ctx, to, string(kind), map[string]interface{}{string(kind): media})
}

// SendContact shares a single contact card.
func (s *CloudService) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	contact := map[string]interface{}{
		"name": map[string]string{
			"formatted_name": card.FormattedName,
			"first_name":     card.FirstName,
			"last_name":      card.LastName,
		},
		"phones": []map[string]string{{"phone": card.Phone, "type": "WORK", "wa_id": card.WaID}},
	}
	if card.Organization != "" {
		contact["org"] = map[string]string{"company": card.Organization}
	}
	if card.Email != "" {
		contact["emails"] = []map[string]string{{"email": card.Email, "type": "WORK"}}
	}
	if card.URL != "" {
		contact["urls"] = []map[string]string{{"url": card.URL, "type": "WORK"}}
	}
	if card.Address != "" {
		contact["addresses"] = []map[string]string{{"street": card.Address, "type": "WORK"}}
	}
	return s.send(ctx, to, "contacts", map[string]interface{}{"contacts": []interface{}{contact}})
}

// SendLocation sends a location pin.
func (s *CloudService) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return s.send(ctx, to, "location", map[string]interface{}{
		"location": map[string]interface{}{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
			"name":      loc.Name,
			"address":   loc.Address,
		},
	})
}

// SendTemplate sends an approved template with no parameters.
func (s *CloudService) SendTemplate(ctx context.Context, to, name, language string) error {
	if name == "" {
		return models.ErrMissingTemplateName
	}
	if language == "" {
		language = "en_US"
	}
	return s.send(ctx, to, "template", map[string]interface{}{
		"template": map[string]interface{}{
			"name":     name,
			"language": map[string]string{"code": language},
		},
	})
}

// MarkRead marks an inbound message as read. from is unused by the Cloud API.
func (s *CloudService) MarkRead(ctx context.Context, from, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message id cannot be empty")
	}
	_, err := s.postMessage(ctx, map[string]interface{}{
		"status":     "read",
		"message_id": messageID,
	})
	return err
}

// UploadMedia uploads r as a media object and returns its id.
func (s *CloudService) UploadMedia(ctx context.Context, filename, mimeType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("messaging_product", messagingProduct); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mimeType); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to buffer media %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(s.phoneNumberID, "media"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := s.do(req, &out); err != nil {
		slog.Error("CloudService.UploadMedia failed", "filename", filename, "error", err)
		return "", err
	}
	slog.Info("CloudService.UploadMedia: uploaded", "filename", filename, "mediaID", out.ID)
	return out.ID, nil
}

// Template is an entry of the business account's template list.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

// ListTemplates returns the message templates of the business account.
func (s *CloudService) ListTemplates(ctx context.Context) ([]Template, error) {
	if s.businessID == "" {
		return nil, ErrBusinessIDNotSet
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(s.businessID, "message_templates"), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Template `json:"data"`
	}
	if err := s.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// VerifyHandler answers the webhook subscription handshake.
func (s *CloudService) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && hmac.Equal([]byte(token), []byte(s.verifyToken)) {
		slog.Info("CloudService.VerifyHandler: webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	slog.Warn("CloudService.VerifyHandler: verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// verifySignature checks the sha256=<hex> HMAC of body against the app secret.
func (s *CloudService) verifySignature(header string, body []byte) error {
	if s.appSecret == "" {
		return nil
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(s.appSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// WebhookHandler accepts Cloud API notifications and emits the contained user
// messages on Responses. Status updates are acknowledged and ignored.
func (s *CloudService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodyBytes))
	if err != nil {
		slog.Error("CloudService.WebhookHandler: failed to read body", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if err := s.verifySignature(r.Header.Get(SignatureHeader), body); err != nil {
		slog.Warn("CloudService.WebhookHandler: signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	messages, err := ParseWebhook(body)
	if err != nil {
		slog.Warn("CloudService.WebhookHandler: invalid payload", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	for _, msg := range messages {
		s.inbox.emit(msg)
	}
	w.WriteHeader(http.StatusOK)
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

// ParseWebhook extracts the user messages of a Cloud API notification body.
// Notifications with no messages (delivery statuses) yield an empty slice.
func ParseWebhook(body []byte) ([]models.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	var out []models.InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, m := range v.Messages {
				msg := models.InboundMessage{
					SenderID:  m.From,
					MessageID: m.ID,
					Type:      models.MessageTypeOther,
				}
				msg.Timestamp, _ = strconv.ParseInt(m.Timestamp, 10, 64)
				for _, c := range v.Contacts {
					if c.WaID == m.From || len(v.Contacts) == 1 {
						msg.Profile = &models.SenderProfile{DisplayName: c.Profile.Name, AccountID: c.WaID}
						break
					}
				}
				switch {
				case m.Type == "text" && m.Text != nil:
					msg.Type = models.MessageTypeText
					msg.Text = m.Text.Body
				case m.Type == "interactive" && m.Interactive != nil:
					msg.Type = models.MessageTypeInteractive
					switch {
					case m.Interactive.ButtonReply != nil:
						msg.Interactive = &models.InteractiveReply{Type: models.InteractiveTypeButtonReply, ID: m.Interactive.ButtonReply.ID, Title: m.Interactive.ButtonReply.Title}
					case m.Interactive.ListReply != nil:
						msg.Interactive = &models.InteractiveReply{Type: models.InteractiveTypeListReply, ID: m.Interactive.ListReply.ID, Title: m.Interactive.ListReply.Title}
					}
				case m.Type == "button" && m.Button != nil:
					// Quick-reply buttons of template messages.
					msg.Type = models.MessageTypeInteractive
					msg.Interactive = &models.InteractiveReply{Type: models.InteractiveTypeButtonReply, ID: m.Button.Payload, Title: m.Button.Text}
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

var (
	_ Service        = (*CloudService)(nil)
	_ TemplateSender = (*CloudService)(nil)
)
