// Package flow defines state management interfaces for stateful flows.
package flow

import (
	"context"
	"errors"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

// ErrInvalidSession is returned when saving a session without a sender.
var ErrInvalidSession = errors.New("session must have a sender id")

// StateManager owns the per-sender sessions. Each sender has at most one session,
// which means at most one active flow.
type StateManager interface {
	// Get returns a copy of the sender's session, or nil when no flow is active.
	Get(ctx context.Context, senderID string) (*models.Session, error)

	// Start replaces any existing session with a fresh one for flow at step.
	Start(ctx context.Context, senderID string, flow models.FlowType, step models.StateType) (*models.Session, error)

	// Save stores an updated session.
	Save(ctx context.Context, session *models.Session) error

	// Reset removes the sender's session.
	Reset(ctx context.Context, senderID string) error

	// Lock serializes turns for one sender. The returned func releases the lock.
	Lock(senderID string) (unlock func())

	// Sweep drops sessions idle longer than the configured timeout and returns how many were dropped.
	Sweep(now time.Time) int

	// List returns a snapshot of all sessions.
	List(ctx context.Context) ([]models.Session, error)
}
