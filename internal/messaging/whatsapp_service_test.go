package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/whatsapp"
)

func textEvent(from, id, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: types.NewJID(from, types.DefaultUserServer)},
			ID:            id,
			PushName:      "Ana",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestWhatsAppService_SendText(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendText(context.Background(), "+52 55 1234 5678", "hola", "wamid.1"); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if len(mockClient.Messages) != 1 || mockClient.Messages[0].To != "525512345678" {
		t.Fatalf("unexpected messages: %+v", mockClient.Messages)
	}
}

func TestWhatsAppService_ButtonsRenderedAsText(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	buttons := []models.Button{{ID: "a", Title: "Uno"}, {ID: "b", Title: "Dos"}}

	if err := svc.SendInteractiveButtons(context.Background(), "525512345678", "Elige", buttons); err != nil {
		t.Fatalf("SendInteractiveButtons: %v", err)
	}
	body := mockClient.SentBodies()[0]
	if body != "Elige\n1. Uno\n2. Dos" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestWhatsAppService_NumericReplyTranslated(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	buttons := []models.Button{{ID: "agendar_cita", Title: "Agendar una cita"}, {ID: "consultar", Title: "Consultar"}}
	if err := svc.SendInteractiveButtons(context.Background(), "525512345678", "Elige", buttons); err != nil {
		t.Fatalf("SendInteractiveButtons: %v", err)
	}

	// Sender id arrives with the legacy mobile prefix.
	svc.handleIncomingMessage(textEvent("5215512345678", "m1", " 2 "))

	msg := <-svc.Responses()
	if msg.Type != models.MessageTypeInteractive || msg.Interactive == nil || msg.Interactive.ID != "consultar" {
		t.Fatalf("expected translated button reply, got %+v", msg)
	}
	if msg.Profile.GreetingName() != "Ana" {
		t.Errorf("expected push name in profile, got %+v", msg.Profile)
	}

	// The menu is consumed by the first answer.
	svc.handleIncomingMessage(textEvent("5215512345678", "m2", "2"))
	msg = <-svc.Responses()
	if msg.Type != models.MessageTypeText || msg.Text != "2" {
		t.Errorf("expected plain text after menu consumed, got %+v", msg)
	}
}

func TestWhatsAppService_IgnoresOwnAndGroupMessages(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	own := textEvent("525512345678", "m1", "hola")
	own.Info.IsFromMe = true
	svc.handleIncomingMessage(own)

	group := textEvent("525512345678", "m2", "hola")
	group.Info.IsGroup = true
	svc.handleIncomingMessage(group)

	select {
	case msg := <-svc.Responses():
		t.Fatalf("expected no message, got %+v", msg)
	default:
	}
}

func TestWhatsAppService_NonTextIsOther(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	evt := textEvent("525512345678", "m1", "")
	evt.Message = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}
	svc.handleIncomingMessage(evt)

	msg := <-svc.Responses()
	if msg.Type != models.MessageTypeOther {
		t.Errorf("expected other type, got %s", msg.Type)
	}
}

func TestWhatsAppService_SendMediaFallsBackToLink(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	err := svc.SendMedia(context.Background(), "525512345678", models.MediaKindAudio, "https://example.com/a.aac", "Bienvenida")
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if got := mockClient.SentBodies()[0]; !strings.HasSuffix(got, "https://example.com/a.aac") {
		t.Errorf("unexpected body %q", got)
	}
	if err := svc.SendMedia(context.Background(), "525512345678", "sticker", "x", ""); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendText(context.Background(), "525512345678", "x", ""); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}
