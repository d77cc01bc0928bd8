package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

type recordingAppender struct {
	spreadsheetID string
	writeRange    string
	rows          [][]interface{}
	err           error
}

func (r *recordingAppender) Append(ctx context.Context, spreadsheetID, writeRange string, row []interface{}) error {
	r.spreadsheetID = spreadsheetID
	r.writeRange = writeRange
	r.rows = append(r.rows, row)
	return r.err
}

func TestSaveAppointmentAppendsRowInOrder(t *testing.T) {
	app := &recordingAppender{}
	c := newClientWithAppender(app, Opts{SpreadsheetID: "sheet-1"})
	rec := models.AppointmentRecord{
		ID:          "id-1",
		RequesterID: "525512345678",
		OwnerName:   "Ana",
		PetName:     "Firulais",
		PetSpecies:  "perro",
		VisitReason: "vacunas",
		CreatedAt:   time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := c.SaveAppointment(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.spreadsheetID != "sheet-1" || app.writeRange != DefaultRange {
		t.Errorf("unexpected target %s/%s", app.spreadsheetID, app.writeRange)
	}
	if len(app.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(app.rows))
	}
	want := []string{"525512345678", "Ana", "Firulais", "perro", "vacunas", "2025-06-01T08:00:00Z"}
	for i, w := range want {
		if app.rows[0][i] != w {
			t.Errorf("row[%d] = %v, want %s", i, app.rows[0][i], w)
		}
	}
}

func TestSaveAppointmentWrapsError(t *testing.T) {
	cause := errors.New("quota exceeded")
	c := newClientWithAppender(&recordingAppender{err: cause}, Opts{SpreadsheetID: "s", Range: "citas"})
	err := c.SaveAppointment(context.Background(), models.AppointmentRecord{ID: "x"})
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, WithCredentialsFile("creds.json")); err != ErrSpreadsheetIDNotSet {
		t.Errorf("expected ErrSpreadsheetIDNotSet, got %v", err)
	}
	if _, err := NewClient(ctx, WithSpreadsheetID("sheet")); err != ErrCredentialsNotSet {
		t.Errorf("expected ErrCredentialsNotSet, got %v", err)
	}
}
