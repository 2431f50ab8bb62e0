// Package store provides storage backends for LabFlow.
//
// It includes an in-memory store for tests and SQLite/PostgreSQL stores for
// production, all behind the same Store interface. Scratch cache access is
// split into its own CacheStore interface so it can be served by Redis
// while durable rows stay relational.
package store

import (
	"strings"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

// CacheStore is the scratch-cache contract: one open record per
// (user, flow) while a flow is in progress, deleted on commit or cancel.
// Save has upsert semantics; merging is done by the flow layer, and
// last-write-wins on concurrent saves is accepted.
type CacheStore interface {
	GetBookingCache(userID string) (*models.BookingCache, error)
	SaveBookingCache(c models.BookingCache) error
	DeleteBookingCache(userID string) error

	GetUploadCache(userID string) (*models.UploadCache, error)
	SaveUploadCache(c models.UploadCache) error
	DeleteUploadCache(userID string) error

	GetRetrievalCache(userID string) (*models.RetrievalCache, error)
	SaveRetrievalCache(c models.RetrievalCache) error
	DeleteRetrievalCache(userID string) error
}

// Store is the full durable storage contract.
type Store interface {
	CacheStore

	// Identity lookups against the external user tables.
	GetUserByPhone(phone string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	CreateUser(u models.User) error
	PatientHasAddress(userID string) (bool, error)
	SavePatient(p models.Patient) error

	// Intent tracking. GetLatestIncompleteIntent returns nil when the phone
	// has no open conversation. CompleteIntent flips the completion flag on
	// every incomplete row for the phone and kind, which repairs any
	// duplicate open intents instead of leaving them dangling.
	GetLatestIncompleteIntent(phone string) (*models.Intent, error)
	CreateIntent(intent models.Intent) error
	CompleteIntent(phone string, kind models.IntentKind) error

	// Committed records, written only at flow commit.
	CreateAppointment(a models.Appointment) error
	ListAppointmentsByPatient(patientID string) ([]models.Appointment, error)

	// ListAppointmentsBetween returns appointments scheduled in [from, to),
	// used by the reminder sweep.
	ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error)
	CreateReport(r models.Report) error
	ListReportsByUser(userID string) ([]models.Report, error)

	// LatestReportBefore returns the most recent report of the given type
	// uploaded before the cutoff, or nil when none exists.
	LatestReportBefore(userID string, reportType models.TestType, before time.Time) (*models.Report, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
