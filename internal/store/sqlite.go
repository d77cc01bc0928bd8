// Package store provides storage backends for VetBot.
//
// This file implements an SQLite-backed store for appointments and dedup records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/Alex3496/VetBot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, requester_id, owner_name, pet_name, pet_species, visit_reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequesterID, rec.OwnerName, rec.PetName, rec.PetSpecies, rec.VisitReason, rec.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveAppointment failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert appointment %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore SaveAppointment succeeded", "id", rec.ID, "requester", rec.RequesterID)
	return nil
}

func (s *SQLiteStore) ListAppointments(ctx context.Context, limit int) ([]models.AppointmentRecord, error) {
	query := `SELECT id, requester_id, owner_name, pet_name, pet_species, visit_reason, created_at FROM appointments ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	recs, err := scanAppointments(rows)
	if err != nil {
		slog.Error("SQLiteStore ListAppointments scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListAppointments succeeded", "count", len(recs))
	return recs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// scanAppointments reads every appointment row.
func scanAppointments(rows *sql.Rows) ([]models.AppointmentRecord, error) {
	var recs []models.AppointmentRecord
	for rows.Next() {
		var r models.AppointmentRecord
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.OwnerName, &r.PetName, &r.PetSpecies, &r.VisitReason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return recs, nil
}
