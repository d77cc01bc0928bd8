// Package sheets appends completed appointments to a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/Alex3496/VetBot/internal/models"
)

// DefaultRange is the sheet (tab) appointments are appended to.
const DefaultRange = "reservas"

// Spreadsheet write modes.
const (
	valueInputRaw     = "RAW"
	insertDataAppends = "INSERT_ROWS"
)

var (
	ErrSpreadsheetIDNotSet = errors.New("spreadsheet id not set")
	ErrCredentialsNotSet   = errors.New("google credentials file not set")
)

// valuesAppender is the subset of the Sheets API used by Client.
type valuesAppender interface {
	Append(ctx context.Context, spreadsheetID, writeRange string, row []interface{}) error
}

// apiAppender wraps the generated Sheets values service.
type apiAppender struct {
	values *sheetsapi.SpreadsheetsValuesService
}

func (a *apiAppender) Append(ctx context.Context, spreadsheetID, writeRange string, row []interface{}) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{row}}
	_, err := a.values.Append(spreadsheetID, writeRange, vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertDataAppends).
		Context(ctx).
		Do()
	return err
}

// Opts holds configuration for the Sheets client.
type Opts struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
}

// Option defines a configuration option for the Sheets client.
type Option func(*Opts)

// WithSpreadsheetID sets the target spreadsheet.
func WithSpreadsheetID(id string) Option {
	return func(o *Opts) { o.SpreadsheetID = id }
}

// WithRange sets the sheet or A1 range rows are appended to.
func WithRange(r string) Option {
	return func(o *Opts) { o.Range = r }
}

// WithCredentialsFile sets the service account JSON key file.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) { o.CredentialsFile = path }
}

// Client writes appointment rows to a spreadsheet.
type Client struct {
	values        valuesAppender
	spreadsheetID string
	writeRange    string
}

// NewClient creates a Sheets client authenticated with a service account file.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := Opts{Range: DefaultRange}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SpreadsheetID == "" {
		return nil, ErrSpreadsheetIDNotSet
	}
	if cfg.CredentialsFile == "" {
		return nil, ErrCredentialsNotSet
	}

	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.Debug("Sheets client created", "spreadsheetID", cfg.SpreadsheetID, "range", cfg.Range)
	return newClientWithAppender(&apiAppender{values: svc.Spreadsheets.Values}, cfg), nil
}

func newClientWithAppender(values valuesAppender, cfg Opts) *Client {
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}
	return &Client{values: values, spreadsheetID: cfg.SpreadsheetID, writeRange: cfg.Range}
}

// SaveAppointment appends rec as one row.
func (c *Client) SaveAppointment(ctx context.Context, rec models.AppointmentRecord) error {
	fields := rec.Row()
	row := make([]interface{}, len(fields))
	for i, f := range fields {
		row[i] = f
	}
	if err := c.values.Append(ctx, c.spreadsheetID, c.writeRange, row); err != nil {
		slog.Error("Sheets.SaveAppointment: append failed", "id", rec.ID, "range", c.writeRange, "error", err)
		return fmt.Errorf("append appointment row: %w", err)
	}
	slog.Info("Sheets.SaveAppointment: row appended", "id", rec.ID, "range", c.writeRange)
	return nil
}
