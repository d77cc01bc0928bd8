package flow

import (
	"context"
	"testing"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/testutil"
)

func TestParseMenuOption(t *testing.T) {
	tests := map[string]MenuOption{
		"Agendar una cita":    OptionBookAppointment,
		"  CONSULTAR ":        OptionAskAssistant,
		"Ubicación":           OptionLocation,
		"ubicacion":           OptionLocation,
		"Emergencia":          OptionEmergency,
		"Sí, gracias":         OptionCloseChat,
		"No, otra pregunta":   OptionAnotherQuestion,
		"quiero una croqueta": OptionUnknown,
		"":                    OptionUnknown,
	}
	for in, want := range tests {
		if got := ParseMenuOption(in); got != want {
			t.Errorf("ParseMenuOption(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveInteractive_IDWinsOverTitle(t *testing.T) {
	reply := &models.InteractiveReply{ID: string(OptionLocation), Title: "Book now"}
	if got := ResolveInteractive(reply); got != OptionLocation {
		t.Errorf("expected id to win, got %q", got)
	}
	reply = &models.InteractiveReply{ID: "legacy-id", Title: "Agendar una cita"}
	if got := ResolveInteractive(reply); got != OptionBookAppointment {
		t.Errorf("expected title fallback, got %q", got)
	}
	if got := ResolveInteractive(nil); got != OptionUnknown {
		t.Errorf("expected unknown for nil, got %q", got)
	}
}

func TestMenuButtonsWithinPlatformLimits(t *testing.T) {
	if err := models.ValidateButtons(WelcomeButtons); err != nil {
		t.Errorf("welcome buttons invalid: %v", err)
	}
	if err := models.ValidateButtons(FollowUpButtons); err != nil {
		t.Errorf("follow-up buttons invalid: %v", err)
	}
	for _, b := range append(append([]models.Button{}, WelcomeButtons...), FollowUpButtons...) {
		if got := ParseMenuOption(b.Title); got != MenuOption(b.ID) {
			t.Errorf("button %q title resolves to %q, want %q", b.Title, got, b.ID)
		}
	}
}

func newTestResolver() (*MenuResolver, *InMemoryStateManager, *testutil.RecordingMessenger) {
	sm := NewInMemoryStateManager()
	msgr := &testutil.RecordingMessenger{}
	appts := NewAppointmentFlow(sm, nil)
	asst := NewAssistantFlow(sm, &testutil.FakeAssistant{Answer: "ok"}, "")
	return NewMenuResolver(msgr, appts, asst, DefaultClinicInfo(), nil), sm, msgr
}

func TestMenuResolver_Actions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		option   MenuOption
		kind     string
		body     string
		wantFlow models.FlowType
	}{
		{OptionBookAppointment, testutil.KindText, MsgAskOwnerName, models.FlowTypeAppointment},
		{OptionAskAssistant, testutil.KindText, MsgAskQuestion, models.FlowTypeAssistant},
		{OptionAnotherQuestion, testutil.KindText, MsgAskQuestion, models.FlowTypeAssistant},
		{OptionLocation, testutil.KindLocation, "", models.FlowTypeNone},
		{OptionEmergency, testutil.KindContact, "", models.FlowTypeNone},
		{OptionCloseChat, testutil.KindText, MsgFarewell, models.FlowTypeNone},
		{OptionUnknown, testutil.KindText, MsgUnknownOption, models.FlowTypeNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.option), func(t *testing.T) {
			r, sm, msgr := newTestResolver()
			if err := r.Resolve(ctx, "52", tt.option); err != nil {
				t.Fatal(err)
			}
			sent := msgr.Sent()
			if len(sent) != 1 {
				t.Fatalf("expected exactly one action, got %d", len(sent))
			}
			if sent[0].Kind != tt.kind {
				t.Errorf("kind = %s, want %s", sent[0].Kind, tt.kind)
			}
			if tt.body != "" && sent[0].Body != tt.body {
				t.Errorf("body = %q, want %q", sent[0].Body, tt.body)
			}
			s, _ := sm.Get(ctx, "52")
			if tt.wantFlow == models.FlowTypeNone {
				if s != nil {
					t.Errorf("expected no session, got %+v", s)
				}
			} else if s == nil || s.Flow != tt.wantFlow {
				t.Errorf("expected %s session, got %+v", tt.wantFlow, s)
			}
		})
	}
}

func TestMenuResolver_LocationPayload(t *testing.T) {
	r, _, msgr := newTestResolver()
	_ = r.Resolve(context.Background(), "52", OptionLocation)
	last, _ := msgr.Last()
	if last.Location == nil || last.Location.Address != DefaultClinicInfo().Location.Address {
		t.Errorf("unexpected location payload %+v", last.Location)
	}
}
