package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

// ErrUnknownStep marks a session whose step does not belong to its flow.
var ErrUnknownStep = errors.New("unknown flow step")

// StepResult is the outcome of one turn in a flow.
type StepResult struct {
	Reply     string
	Completed bool
	Aborted   bool
	Record    *models.AppointmentRecord
}

// AppointmentFlow collects owner name, pet name, species and visit reason, one per turn.
type AppointmentFlow struct {
	states StateManager
	sink   AppointmentSink
	now    func() time.Time
}

// NewAppointmentFlow creates an AppointmentFlow. sink may be nil, in which case
// completed appointments are only logged.
func NewAppointmentFlow(states StateManager, sink AppointmentSink) *AppointmentFlow {
	return &AppointmentFlow{states: states, sink: sink, now: time.Now}
}

// Start opens the flow for senderID at the first step and returns the first prompt.
func (f *AppointmentFlow) Start(ctx context.Context, senderID string) (string, error) {
	if _, err := f.states.Start(ctx, senderID, models.FlowTypeAppointment, models.StateOwnerName); err != nil {
		return "", fmt.Errorf("start appointment flow: %w", err)
	}
	slog.Info("AppointmentFlow.Start: flow started", "senderID", senderID)
	return MsgAskOwnerName, nil
}

// Advance stores text for the session's current step and moves to the next one.
// After the reason step the record is emitted and the session removed.
func (f *AppointmentFlow) Advance(ctx context.Context, session *models.Session, text string) (StepResult, error) {
	value := strings.TrimSpace(text)
	s := session.Clone()

	var next models.StateType
	var reply string
	switch s.Step {
	case models.StateOwnerName:
		s.Draft.OwnerName = value
		next, reply = models.StatePetName, fmt.Sprintf(askPetNameFormat, value)
	case models.StatePetName:
		s.Draft.PetName = value
		next, reply = models.StatePetSpecies, fmt.Sprintf(askPetSpeciesFormat, s.Draft.OwnerName, value)
	case models.StatePetSpecies:
		s.Draft.PetSpecies = value
		next, reply = models.StateReason, fmt.Sprintf(askReasonFormat, value)
	case models.StateReason:
		s.Draft.VisitReason = value
		return f.complete(ctx, s)
	default:
		slog.Warn("AppointmentFlow.Advance: aborting flow", "senderID", s.SenderID, "step", s.Step, "error", ErrUnknownStep)
		if err := f.states.Reset(ctx, s.SenderID); err != nil {
			return StepResult{}, fmt.Errorf("reset aborted appointment: %w", err)
		}
		return StepResult{Reply: MsgSomethingWrong, Aborted: true}, nil
	}

	s.Step = next
	if err := f.states.Save(ctx, s); err != nil {
		return StepResult{}, fmt.Errorf("save appointment step: %w", err)
	}
	slog.Debug("AppointmentFlow.Advance: step stored", "senderID", s.SenderID, "step", next)
	return StepResult{Reply: reply}, nil
}

// complete emits the record and clears the session. A sink failure is logged;
// the confirmation is still returned.
func (f *AppointmentFlow) complete(ctx context.Context, s *models.Session) (StepResult, error) {
	rec := models.NewAppointmentRecord(s.SenderID, s.Draft, f.now())
	if err := f.states.Reset(ctx, s.SenderID); err != nil {
		return StepResult{}, fmt.Errorf("reset completed appointment: %w", err)
	}
	if f.sink != nil {
		if err := f.sink.SaveAppointment(ctx, rec); err != nil {
			slog.Error("AppointmentFlow.complete: persisting appointment failed", "id", rec.ID, "senderID", s.SenderID, "error", err)
		}
	}
	slog.Info("AppointmentFlow.complete: appointment registered", "id", rec.ID, "senderID", s.SenderID, "species", rec.PetSpecies)
	reply := fmt.Sprintf(confirmationFormat, rec.OwnerName, rec.PetSpecies, rec.PetName, rec.VisitReason)
	return StepResult{Reply: reply, Completed: true, Record: &rec}, nil
}
