// Package store provides storage backends for VetBot.
//
// It includes an in-memory store plus SQLite and PostgreSQL stores for completed
// appointments and inbound message deduplication.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

// ErrDSNNotSet is returned when a SQL store is created without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// DSN types understood by Open.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithDSN sets the data source name for either SQL backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// DetectDSNType returns the driver name for dsn: postgres for URLs and key=value
// connection strings, sqlite3 for file paths.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") || strings.Contains(dsn, "user=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// AppointmentRepo persists completed appointments.
type AppointmentRepo interface {
	SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error
	// ListAppointments returns up to limit records, newest first. limit <= 0 means all.
	ListAppointments(ctx context.Context, limit int) ([]models.AppointmentRecord, error)
}

// Store is the full persistence surface used by VetBot.
type Store interface {
	AppointmentRepo
	DedupRepo
	Close() error
}

// Open creates a SQL store for dsn, choosing the backend with DetectDSNType.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return nil, ErrDSNNotSet
	}
	if DetectDSNType(dsn) == DSNTypePostgres {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// InMemoryStore is a process-local Store, used when no database is configured and in tests.
type InMemoryStore struct {
	mu           sync.Mutex
	appointments []models.AppointmentRecord
	dedup        map[string]*DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{dedup: make(map[string]*DedupRecord)}
}

func (s *InMemoryStore) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, rec)
	return nil
}

func (s *InMemoryStore) ListAppointments(ctx context.Context, limit int) ([]models.AppointmentRecord, error) {
	s.mu.Lock()
	out := append([]models.AppointmentRecord(nil), s.appointments...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, senderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, SenderID: senderID, ReceivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := time.Now().UTC()
		r.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ForgetInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dedup, messageID)
	return nil
}

func (s *InMemoryStore) PruneBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.dedup {
		if r.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error { return nil }
