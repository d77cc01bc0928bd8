package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Alex3496/VetBot/internal/models"
)

type graphRecorder struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]interface{}
	auth     []string
}

func (g *graphRecorder) last(t *testing.T) map[string]interface{} {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.payloads) == 0 {
		t.Fatal("no payload recorded")
	}
	return g.payloads[len(g.payloads)-1]
}

func newGraphServer(t *testing.T, status int) (*httptest.Server, *graphRecorder) {
	t.Helper()
	rec := &graphRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.paths = append(rec.paths, r.URL.Path)
		rec.auth = append(rec.auth, r.Header.Get("Authorization"))
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var p map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&p)
			rec.payloads = append(rec.payloads, p)
		}
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch {
		case status >= 300:
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"abc"}}`)
		case strings.HasSuffix(r.URL.Path, "/media"):
			_, _ = io.WriteString(w, `{"id":"media-1"}`)
		case strings.HasSuffix(r.URL.Path, "/message_templates"):
			_, _ = io.WriteString(w, `{"data":[{"id":"1","name":"hello_world","language":"en_US","status":"APPROVED","category":"UTILITY"}]}`)
		default:
			_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestCloud(t *testing.T, srv *httptest.Server, opts ...CloudOption) *CloudService {
	t.Helper()
	base := []CloudOption{
		WithBaseURL(srv.URL),
		WithAPIVersion("v22.0"),
		WithAccessToken("token"),
		WithPhoneNumberID("123"),
		WithBusinessID("456"),
		WithVerifyToken("verify-me"),
		WithHTTPClient(srv.Client()),
	}
	svc, err := NewCloudService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewCloudService: %v", err)
	}
	return svc
}

func TestNewCloudService_RequiresCredentials(t *testing.T) {
	if _, err := NewCloudService(WithPhoneNumberID("123")); err == nil {
		t.Error("expected error without access token")
	}
}

func TestCloudService_SendTextWithContext(t *testing.T) {
	srv, rec := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)

	if err := svc.SendText(context.Background(), "525512345678", "Echo: hola", "wamid.in"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if rec.paths[0] != "/v22.0/123/messages" {
		t.Errorf("unexpected path %s", rec.paths[0])
	}
	if rec.auth[0] != "Bearer token" {
		t.Errorf("unexpected auth header %q", rec.auth[0])
	}
	p := rec.last(t)
	if p["messaging_product"] != "whatsapp" || p["type"] != "text" || p["to"] != "525512345678" {
		t.Errorf("unexpected payload %v", p)
	}
	if p["text"].(map[string]interface{})["body"] != "Echo: hola" {
		t.Errorf("unexpected text %v", p["text"])
	}
	if p["context"].(map[string]interface{})["message_id"] != "wamid.in" {
		t.Errorf("unexpected context %v", p["context"])
	}
}

func TestCloudService_SendInteractiveButtons(t *testing.T) {
	srv, rec := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)
	buttons := []models.Button{{ID: "agendar_cita", Title: "Agendar una cita"}, {ID: "consultar", Title: "Consultar"}}

	if err := svc.SendInteractiveButtons(context.Background(), "525512345678", "Elige una opción", buttons); err != nil {
		t.Fatalf("SendInteractiveButtons: %v", err)
	}
	interactive := rec.last(t)["interactive"].(map[string]interface{})
	if interactive["type"] != "button" {
		t.Errorf("unexpected interactive type %v", interactive["type"])
	}
	got := interactive["action"].(map[string]interface{})["buttons"].([]interface{})
	if len(got) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(got))
	}
	reply := got[0].(map[string]interface{})["reply"].(map[string]interface{})
	if reply["id"] != "agendar_cita" || reply["title"] != "Agendar una cita" {
		t.Errorf("unexpected reply %v", reply)
	}

	tooMany := append(buttons, models.Button{ID: "c", Title: "c"}, models.Button{ID: "d", Title: "d"})
	if err := svc.SendInteractiveButtons(context.Background(), "525512345678", "x", tooMany); !errors.Is(err, models.ErrTooManyButtons) {
		t.Errorf("expected ErrTooManyButtons, got %v", err)
	}
}

func TestCloudService_SendMediaShapes(t *testing.T) {
	srv, rec := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)
	ctx := context.Background()

	if err := svc.SendMedia(ctx, "525512345678", models.MediaKindAudio, "https://example.com/a.aac", "Bienvenida"); err != nil {
		t.Fatalf("SendMedia audio: %v", err)
	}
	audio := rec.last(t)["audio"].(map[string]interface{})
	if audio["link"] != "https://example.com/a.aac" {
		t.Errorf("unexpected audio link %v", audio)
	}
	if _, ok := audio["caption"]; ok {
		t.Error("audio must not carry a caption")
	}

	if err := svc.SendMedia(ctx, "525512345678", models.MediaKindDocument, "https://example.com/files/guia.pdf", "Guía"); err != nil {
		t.Fatalf("SendMedia document: %v", err)
	}
	doc := rec.last(t)["document"].(map[string]interface{})
	if doc["filename"] != "guia.pdf" || doc["caption"] != "Guía" {
		t.Errorf("unexpected document %v", doc)
	}

	if err := svc.SendMedia(ctx, "525512345678", models.MediaKindImage, "https://example.com/i.png", "Foto"); err != nil {
		t.Fatalf("SendMedia image: %v", err)
	}
	if rec.last(t)["image"].(map[string]interface{})["caption"] != "Foto" {
		t.Error("image caption missing")
	}

	if err := svc.SendMedia(ctx, "525512345678", "sticker", "x", ""); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

func TestCloudService_ContactLocationTemplateRead(t *testing.T) {
	srv, rec := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)
	ctx := context.Background()

	card := models.ContactCard{FormattedName: "MedPet Urgencias", FirstName: "MedPet", Phone: "+525512345678", WaID: "525512345678"}
	if err := svc.SendContact(ctx, "525512345678", card); err != nil {
		t.Fatalf("SendContact: %v", err)
	}
	contacts := rec.last(t)["contacts"].([]interface{})
	name := contacts[0].(map[string]interface{})["name"].(map[string]interface{})
	if name["formatted_name"] != "MedPet Urgencias" {
		t.Errorf("unexpected contact name %v", name)
	}

	loc := models.Location{Latitude: 19.432608, Longitude: -99.133209, Name: "MedPet", Address: "Calle Falsa 123"}
	if err := svc.SendLocation(ctx, "525512345678", loc); err != nil {
		t.Fatalf("SendLocation: %v", err)
	}
	l := rec.last(t)["location"].(map[string]interface{})
	if l["latitude"] != 19.432608 || l["name"] != "MedPet" {
		t.Errorf("unexpected location %v", l)
	}

	if err := svc.SendTemplate(ctx, "525512345678", "hello_world", ""); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	tpl := rec.last(t)["template"].(map[string]interface{})
	if tpl["name"] != "hello_world" || tpl["language"].(map[string]interface{})["code"] != "en_US" {
		t.Errorf("unexpected template %v", tpl)
	}

	if err := svc.MarkRead(ctx, "525512345678", "wamid.in"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	read := rec.last(t)
	if read["status"] != "read" || read["message_id"] != "wamid.in" {
		t.Errorf("unexpected read payload %v", read)
	}
	if _, ok := read["to"]; ok {
		t.Error("read receipt must not address a recipient")
	}
}

func TestCloudService_APIError(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusBadRequest)
	svc := newTestCloud(t, srv)

	err := svc.SendText(context.Background(), "525512345678", "hola", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != 100 {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}

func TestCloudService_UploadAndListTemplates(t *testing.T) {
	srv, rec := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)
	ctx := context.Background()

	id, err := svc.UploadMedia(ctx, "audio.aac", "audio/aac", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if id != "media-1" || rec.paths[0] != "/v22.0/123/media" {
		t.Errorf("unexpected upload result id=%q path=%q", id, rec.paths[0])
	}

	templates, err := svc.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) != 1 || templates[0].Name != "hello_world" {
		t.Errorf("unexpected templates %+v", templates)
	}
	if rec.paths[1] != "/v22.0/456/message_templates" {
		t.Errorf("unexpected path %s", rec.paths[1])
	}
}

func TestCloudService_VerifyHandler(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusForbidden, ""},
		{"missing", "", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			svc.VerifyHandler(rr, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))
			if rr.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rr.Code)
			}
			if rr.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rr.Body.String())
			}
		})
	}
}

const sampleWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "456",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"profile": {"name": "Ana"}, "wa_id": "5215512345678"}],
        "messages": [{
          "from": "5215512345678",
          "id": "wamid.in",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hola"}
        }]
      }
    }]
  }]
}`

func TestParseWebhook(t *testing.T) {
	msgs, err := ParseWebhook([]byte(sampleWebhook))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.SenderID != "5215512345678" || m.MessageID != "wamid.in" || m.Type != models.MessageTypeText || m.Text != "hola" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Timestamp != 1700000000 || m.Profile.GreetingName() != "Ana" {
		t.Errorf("unexpected metadata %+v %+v", m, m.Profile)
	}
}

func TestParseWebhook_Variants(t *testing.T) {
	interactive := `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"a","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"consultar","title":"Consultar"}}}]}}]}]}`
	msgs, err := ParseWebhook([]byte(interactive))
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ParseWebhook: %v %v", msgs, err)
	}
	if msgs[0].Type != models.MessageTypeInteractive || msgs[0].Interactive.ID != "consultar" {
		t.Errorf("unexpected interactive %+v", msgs[0])
	}
	if msgs[0].Profile != nil {
		t.Error("expected nil profile without contacts")
	}

	image := `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"b","type":"image","image":{"id":"x"}}]}}]}]}`
	msgs, _ = ParseWebhook([]byte(image))
	if msgs[0].Type != models.MessageTypeOther {
		t.Errorf("expected other, got %s", msgs[0].Type)
	}

	status := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.out","status":"delivered"}]}}]}]}`
	msgs, err = ParseWebhook([]byte(status))
	if err != nil || len(msgs) != 0 {
		t.Errorf("expected no messages for a status update, got %v %v", msgs, err)
	}

	if _, err := ParseWebhook([]byte("{")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestCloudService_WebhookHandler(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv, WithAppSecret("app-secret"))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleWebhook))
	req.Header.Set(SignatureHeader, sign("app-secret", sampleWebhook))
	svc.WebhookHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	msg := <-svc.Responses()
	if msg.MessageID != "wamid.in" {
		t.Errorf("unexpected message %+v", msg)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleWebhook))
	req.Header.Set(SignatureHeader, sign("other", sampleWebhook))
	svc.WebhookHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for bad signature, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
	req.Header.Set(SignatureHeader, sign("app-secret", "{"))
	svc.WebhookHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestCloudService_StoppedRejectsSends(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusOK)
	svc := newTestCloud(t, srv)
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.SendText(context.Background(), "525512345678", "hola", ""); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
