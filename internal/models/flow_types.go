// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents the kind of conversation flow a sender is in.
type FlowType string

// StateType represents a specific step within a flow.
type StateType string

// Flow type constants. FlowTypeNone means the sender has no active flow.
const (
	FlowTypeNone        FlowType = ""
	FlowTypeAppointment FlowType = "appointment"
	FlowTypeAssistant   FlowType = "assistant"
)

// Step constants for the appointment flow, in the order they are collected.
const (
	StateOwnerName  StateType = "name"
	StatePetName    StateType = "petName"
	StatePetSpecies StateType = "petType"
	StateReason     StateType = "reason"
)

// Step constants for the assistant flow.
const (
	StateQuestion StateType = "question"
)

// IsValid reports whether the flow type is one the dispatcher can drive.
func (f FlowType) IsValid() bool {
	switch f {
	case FlowTypeNone, FlowTypeAppointment, FlowTypeAssistant:
		return true
	default:
		return false
	}
}
