// Package store provides storage backends for VetBot.
//
// This file implements a PostgreSQL-backed store for appointments and dedup records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Alex3496/VetBot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, requester_id, owner_name, pet_name, pet_species, visit_reason, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RequesterID, rec.OwnerName, rec.PetName, rec.PetSpecies, rec.VisitReason, rec.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveAppointment failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert appointment %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore SaveAppointment succeeded", "id", rec.ID, "requester", rec.RequesterID)
	return nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, limit int) ([]models.AppointmentRecord, error) {
	query := `SELECT id, requester_id, owner_name, pet_name, pet_species, visit_reason, created_at FROM appointments ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	recs, err := scanAppointments(rows)
	if err != nil {
		slog.Error("PostgresStore ListAppointments scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListAppointments succeeded", "count", len(recs))
	return recs, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
