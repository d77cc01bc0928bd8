package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Alex3496/VetBot/internal/models"
)

// MessagingService is the outbound side of a messaging transport.
type MessagingService interface {
	SendText(ctx context.Context, to, body, inReplyTo string) error
	SendInteractiveButtons(ctx context.Context, to, body string, buttons []models.Button) error
	SendMedia(ctx context.Context, to string, kind models.MediaKind, url, caption string) error
	SendContact(ctx context.Context, to string, card models.ContactCard) error
	SendLocation(ctx context.Context, to string, loc models.Location) error
	MarkRead(ctx context.Context, from, messageID string) error
}

// AppointmentSink persists completed appointments.
type AppointmentSink interface {
	SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error
}

// MultiSink writes every appointment to each sink in order. A failing sink does
// not stop the rest; the joined error is returned.
type MultiSink []AppointmentSink

// SaveAppointment implements AppointmentSink.
func (m MultiSink) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.SaveAppointment(ctx, rec); err != nil {
			slog.Error("MultiSink.SaveAppointment: sink failed", "id", rec.ID, "requester", rec.RequesterID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer receives conversation events, typically to export metrics.
type Observer interface {
	IntentClassified(intent Intent)
	MenuOptionSelected(option MenuOption)
	FlowEvent(flow models.FlowType, event FlowEvent)
	CollaboratorFailure(operation string)
}

// FlowEvent names a lifecycle change of a flow.
type FlowEvent string

const (
	FlowStarted   FlowEvent = "started"
	FlowCompleted FlowEvent = "completed"
	FlowAborted   FlowEvent = "aborted"
	FlowExpired   FlowEvent = "expired"
)

type noopObserver struct{}

func (noopObserver) IntentClassified(Intent)              {}
func (noopObserver) MenuOptionSelected(MenuOption)        {}
func (noopObserver) FlowEvent(models.FlowType, FlowEvent) {}
func (noopObserver) CollaboratorFailure(string)           {}
