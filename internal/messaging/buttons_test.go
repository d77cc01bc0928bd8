package messaging

import (
	"testing"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

func TestRenderButtons(t *testing.T) {
	got := RenderButtons("Elige una opción", []models.Button{
		{ID: "agendar_cita", Title: "Agendar una cita"},
		{ID: "consultar", Title: "Consultar"},
		{ID: "ubicacion", Title: "Ubicación"},
	})
	want := "Elige una opción\n1. Agendar una cita\n2. Consultar\n3. Ubicación"
	if got != want {
		t.Errorf("RenderButtons() = %q, want %q", got, want)
	}
}

func TestMenuMemoryTranslate(t *testing.T) {
	m := newMenuMemory()
	m.remember("525512345678", []models.Button{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})

	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"not a number", "hola", false},
		{"zero", "0", false},
		{"out of range", "3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := m.translate("525512345678", tt.text); ok != tt.ok {
				t.Errorf("translate(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
		})
	}

	if _, ok := m.translate("14155550100", "1"); ok {
		t.Error("another sender must not see the menu")
	}
	reply, ok := m.translate("5215512345678", "1")
	if !ok || reply.ID != "a" || reply.Type != models.InteractiveTypeButtonReply {
		t.Fatalf("expected button a, got %+v ok=%v", reply, ok)
	}
	if _, ok := m.translate("525512345678", "2"); ok {
		t.Error("menu should be consumed after a valid answer")
	}
}

func TestMenuMemoryExpires(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	m := newMenuMemory()
	m.now = func() time.Time { return now }

	m.remember("525512345678", []models.Button{{ID: "a", Title: "A"}})
	m.remember("14155550100", []models.Button{{ID: "b", Title: "B"}})

	now = now.Add(DefaultMenuTTL + time.Minute)
	if _, ok := m.translate("525512345678", "1"); ok {
		t.Error("an expired menu must not translate")
	}
	if m.size() != 1 {
		t.Fatalf("expected the expired menu to be dropped on lookup, %d left", m.size())
	}

	// Remembering a menu for anyone purges the other stale entries.
	m.remember("5215599998888", []models.Button{{ID: "c", Title: "C"}})
	if m.size() != 1 {
		t.Errorf("expected only the fresh menu to remain, got %d", m.size())
	}
	if reply, ok := m.translate("525599998888", "1"); !ok || reply.ID != "c" {
		t.Errorf("fresh menu should translate, got %+v ok=%v", reply, ok)
	}
}
