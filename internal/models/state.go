// Package models defines state management structures for VetBot flows.
package models

import "time"

// AppointmentDraft holds the appointment fields collected so far.
type AppointmentDraft struct {
	OwnerName   string `json:"owner_name,omitempty"`
	PetName     string `json:"pet_name,omitempty"`
	PetSpecies  string `json:"pet_species,omitempty"`
	VisitReason string `json:"visit_reason,omitempty"`
}

// Session is the single per-sender conversation state. A sender has at most one
// session, so at most one active flow.
type Session struct {
	SenderID  string           `json:"sender_id"`
	Flow      FlowType         `json:"flow"`
	Step      StateType        `json:"step"`
	Draft     AppointmentDraft `json:"draft,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Active reports whether the session is driving a flow.
func (s *Session) Active() bool {
	return s != nil && s.Flow != FlowTypeNone
}

// Clone returns a copy safe to hand out of the session store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
