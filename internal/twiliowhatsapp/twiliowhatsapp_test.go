package twiliowhatsapp

import (
	"context"
	"testing"

	"github.com/Alex3496/VetBot/internal/models"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "12345" {
		t.Errorf("unexpected Sent() copy %+v", sent)
	}
}

func TestMockClient_SendMedia(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMedia(context.Background(), "12345", "https://example.com/a.aac", "Bienvenida"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.MediaSends) != 1 || mock.MediaSends[0].Caption != "Bienvenida" {
		t.Errorf("unexpected media sends: %+v", mock.MediaSends)
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"525512345678":           "whatsapp:+525512345678",
		"+525512345678":          "whatsapp:+525512345678",
		"whatsapp:+525512345678": "whatsapp:+525512345678",
	}
	for in, want := range cases {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
	if got := StripAddress("whatsapp:+5215512345678"); got != "5215512345678" {
		t.Errorf("StripAddress = %q", got)
	}
}

func TestGeoAction(t *testing.T) {
	loc := models.Location{Latitude: 19.432608, Longitude: -99.133209, Name: "MedPet", Address: "Calle Falsa 123"}
	if got := GeoAction(loc); got != "geo:19.432608,-99.133209|MedPet" {
		t.Errorf("GeoAction = %q", got)
	}
	if got := LocationBody(loc); got != "MedPet\nCalle Falsa 123" {
		t.Errorf("LocationBody = %q", got)
	}
}
