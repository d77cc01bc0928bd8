// Package testutil provides common test utilities and helpers for VetBot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Alex3496/VetBot/internal/models"
)

// Kinds of outbound actions captured by RecordingMessenger.
const (
	KindText     = "text"
	KindButtons  = "buttons"
	KindMedia    = "media"
	KindContact  = "contact"
	KindLocation = "location"
	KindRead     = "read"
)

// SentMessage is one outbound action captured by RecordingMessenger.
type SentMessage struct {
	Kind      string
	To        string
	Body      string
	InReplyTo string
	Buttons   []models.Button
	MediaKind models.MediaKind
	URL       string
	Caption   string
	Contact   *models.ContactCard
	Location  *models.Location
	MessageID string
}

// RecordingMessenger records every outbound action in order. Setting Err makes
// every call fail after being recorded.
type RecordingMessenger struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

func (r *RecordingMessenger) record(m SentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.Err
}

// SendText records a text message.
func (r *RecordingMessenger) SendText(ctx context.Context, to, body, inReplyTo string) error {
	return r.record(SentMessage{Kind: KindText, To: to, Body: body, InReplyTo: inReplyTo})
}

// SendInteractiveButtons records a button menu.
func (r *RecordingMessenger) SendInteractiveButtons(ctx context.Context, to, body string, buttons []models.Button) error {
	return r.record(SentMessage{Kind: KindButtons, To: to, Body: body, Buttons: append([]models.Button(nil), buttons...)})
}

// SendMedia records a media message.
func (r *RecordingMessenger) SendMedia(ctx context.Context, to string, kind models.MediaKind, url, caption string) error {
	return r.record(SentMessage{Kind: KindMedia, To: to, MediaKind: kind, URL: url, Caption: caption})
}

// SendContact records a contact card.
func (r *RecordingMessenger) SendContact(ctx context.Context, to string, card models.ContactCard) error {
	return r.record(SentMessage{Kind: KindContact, To: to, Contact: &card})
}

// SendLocation records a location.
func (r *RecordingMessenger) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return r.record(SentMessage{Kind: KindLocation, To: to, Location: &loc})
}

// MarkRead records a read receipt.
func (r *RecordingMessenger) MarkRead(ctx context.Context, from, messageID string) error {
	return r.record(SentMessage{Kind: KindRead, To: from, MessageID: messageID})
}

// Sent returns a copy of the captured actions.
func (r *RecordingMessenger) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.sent...)
}

// Kinds returns the kinds of the captured actions, in order.
func (r *RecordingMessenger) Kinds() []string {
	sent := r.Sent()
	kinds := make([]string, len(sent))
	for i, m := range sent {
		kinds[i] = m.Kind
	}
	return kinds
}

// Last returns the most recent action that is not a read receipt.
func (r *RecordingMessenger) Last() (SentMessage, bool) {
	sent := r.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Kind != KindRead {
			return sent[i], true
		}
	}
	return SentMessage{}, false
}

// Reset clears captured actions.
func (r *RecordingMessenger) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// FakeAssistant returns a canned answer or error and records the questions asked.
type FakeAssistant struct {
	mu        sync.Mutex
	Answer    string
	Err       error
	Questions []string
	System    string
}

// GeneratePrompt implements the language-model client.
func (f *FakeAssistant) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return f.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext implements the language-model client.
func (f *FakeAssistant) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.System = systemPrompt
	f.Questions = append(f.Questions, userPrompt)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Answer, nil
}

// MemorySink captures saved appointments.
type MemorySink struct {
	mu      sync.Mutex
	Records []models.AppointmentRecord
	Err     error
}

// SaveAppointment records rec and returns Err.
func (s *MemorySink) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return s.Err
}

// Saved returns a copy of the captured records.
func (s *MemorySink) Saved() []models.AppointmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AppointmentRecord(nil), s.Records...)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// TextMessage builds an inbound text message.
func TextMessage(from, id, body string) models.InboundMessage {
	return models.InboundMessage{SenderID: from, MessageID: id, Type: models.MessageTypeText, Text: body}
}

// ButtonReply builds an inbound button reply.
func ButtonReply(from, id, buttonID, title string) models.InboundMessage {
	return models.InboundMessage{
		SenderID:  from,
		MessageID: id,
		Type:      models.MessageTypeInteractive,
		Interactive: &models.InteractiveReply{
			Type:  models.InteractiveTypeButtonReply,
			ID:    buttonID,
			Title: title,
		},
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
