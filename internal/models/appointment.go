package models

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentRecord is a completed appointment request. It is immutable once emitted.
type AppointmentRecord struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	OwnerName   string    `json:"owner_name"`
	PetName     string    `json:"pet_name"`
	PetSpecies  string    `json:"pet_species"`
	VisitReason string    `json:"visit_reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAppointmentRecord assembles a record from a finished draft.
func NewAppointmentRecord(requesterID string, d AppointmentDraft, at time.Time) AppointmentRecord {
	return AppointmentRecord{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		OwnerName:   d.OwnerName,
		PetName:     d.PetName,
		PetSpecies:  d.PetSpecies,
		VisitReason: d.VisitReason,
		CreatedAt:   at.UTC(),
	}
}

// Row returns the persisted columns in their fixed order:
// requester id, owner name, pet name, pet species, reason, timestamp.
func (r AppointmentRecord) Row() []string {
	return []string{
		r.RequesterID,
		r.OwnerName,
		r.PetName,
		r.PetSpecies,
		r.VisitReason,
		r.CreatedAt.Format(time.RFC3339),
	}
}
