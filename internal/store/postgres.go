// Package store provides storage backends for LabFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/labflowhq/labflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
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
		return nil, fmt.Errorf("database DSN not set")
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
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) GetUserByPhone(phone string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, phone, name FROM users WHERE phone = $1`, phone).
		Scan(&u.ID, &u.Phone, &name)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *PostgresStore) GetUserByID(id string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, phone, name FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Phone, &name)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByID not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByID failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *PostgresStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, phone, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET phone = EXCLUDED.phone, name = EXCLUDED.name`,
		u.ID, u.Phone, nilIfEmpty(u.Name))
	if err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) PatientHasAddress(userID string) (bool, error) {
	var address sql.NullString
	err := s.db.QueryRow(`SELECT address FROM patients WHERE user_id = $1`, userID).Scan(&address)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore PatientHasAddress failed", "error", err, "userID", userID)
		return false, fmt.Errorf("failed to query patient address: %w", err)
	}
	return address.Valid && address.String != "", nil
}

func (s *PostgresStore) SavePatient(p models.Patient) error {
	_, err := s.db.Exec(`INSERT INTO patients (user_id, address) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address`,
		p.UserID, nilIfEmpty(p.Address))
	if err != nil {
		slog.Error("PostgresStore SavePatient failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestIncompleteIntent(phone string) (*models.Intent, error) {
	var it models.Intent
	err := s.db.QueryRow(`SELECT id, phone, user_id, kind, completed, updated_at FROM intents
		WHERE phone = $1 AND completed = FALSE ORDER BY updated_at DESC LIMIT 1`, phone).
		Scan(&it.ID, &it.Phone, &it.UserID, &it.Kind, &it.Completed, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestIncompleteIntent failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query latest incomplete intent: %w", err)
	}
	return &it, nil
}

func (s *PostgresStore) CreateIntent(intent models.Intent) error {
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO intents (id, phone, user_id, kind, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		intent.ID, intent.Phone, intent.UserID, string(intent.Kind), intent.Completed, intent.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateIntent failed", "error", err, "phone", intent.Phone, "kind", intent.Kind)
		return fmt.Errorf("failed to insert intent: %w", err)
	}
	slog.Debug("PostgresStore CreateIntent succeeded", "phone", intent.Phone, "kind", intent.Kind)
	return nil
}

func (s *PostgresStore) CompleteIntent(phone string, kind models.IntentKind) error {
	_, err := s.db.Exec(`UPDATE intents SET completed = TRUE, updated_at = $1
		WHERE phone = $2 AND kind = $3 AND completed = FALSE`,
		time.Now(), phone, string(kind))
	if err != nil {
		slog.Error("PostgresStore CompleteIntent failed", "error", err, "phone", phone, "kind", kind)
		return fmt.Errorf("failed to complete intent: %w", err)
	}
	slog.Debug("PostgresStore CompleteIntent succeeded", "phone", phone, "kind", kind)
	return nil
}

func (s *PostgresStore) GetBookingCache(userID string) (*models.BookingCache, error) {
	var c models.BookingCache
	var testType, date, timeOfTest sql.NullString
	var homeVisit sql.NullBool
	err := s.db.QueryRow(`SELECT user_id, phone, address_checked, test_type, date_of_test, time_of_test, home_visit
		FROM cache_bookings WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.Phone, &c.AddressChecked, &testType, &date, &timeOfTest, &homeVisit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetBookingCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query booking cache: %w", err)
	}
	c.TestType = nullTestType(testType)
	c.Date = nullString(date)
	c.Time = nullString(timeOfTest)
	c.HomeVisit = nullBool(homeVisit)
	return &c, nil
}

func (s *PostgresStore) SaveBookingCache(c models.BookingCache) error {
	_, err := s.db.Exec(`INSERT INTO cache_bookings
		(user_id, phone, address_checked, test_type, date_of_test, time_of_test, home_visit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			address_checked = EXCLUDED.address_checked,
			test_type = EXCLUDED.test_type,
			date_of_test = EXCLUDED.date_of_test,
			time_of_test = EXCLUDED.time_of_test,
			home_visit = EXCLUDED.home_visit`,
		c.UserID, c.Phone, c.AddressChecked, testTypeArg(c.TestType), stringArg(c.Date), stringArg(c.Time), boolArg(c.HomeVisit))
	if err != nil {
		slog.Error("PostgresStore SaveBookingCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save booking cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBookingCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_bookings WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteBookingCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete booking cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUploadCache(userID string) (*models.UploadCache, error) {
	var c models.UploadCache
	var mediaURL, reportType sql.NullString
	err := s.db.QueryRow(`SELECT user_id, phone, media_url, report_type FROM cache_uploads WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.Phone, &mediaURL, &reportType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUploadCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query upload cache: %w", err)
	}
	c.MediaURL = nullString(mediaURL)
	c.ReportType = nullTestType(reportType)
	return &c, nil
}

func (s *PostgresStore) SaveUploadCache(c models.UploadCache) error {
	_, err := s.db.Exec(`INSERT INTO cache_uploads (user_id, phone, media_url, report_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			media_url = EXCLUDED.media_url,
			report_type = EXCLUDED.report_type`,
		c.UserID, c.Phone, stringArg(c.MediaURL), testTypeArg(c.ReportType))
	if err != nil {
		slog.Error("PostgresStore SaveUploadCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save upload cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUploadCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_uploads WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteUploadCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete upload cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRetrievalCache(userID string) (*models.RetrievalCache, error) {
	var c models.RetrievalCache
	var reportType, date sql.NullString
	err := s.db.QueryRow(`SELECT user_id, phone, report_type, date_of_report FROM cache_retrievals WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.Phone, &reportType, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetRetrievalCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query retrieval cache: %w", err)
	}
	c.ReportType = nullTestType(reportType)
	c.Date = nullString(date)
	return &c, nil
}

func (s *PostgresStore) SaveRetrievalCache(c models.RetrievalCache) error {
	_, err := s.db.Exec(`INSERT INTO cache_retrievals (user_id, phone, report_type, date_of_report)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			report_type = EXCLUDED.report_type,
			date_of_report = EXCLUDED.date_of_report`,
		c.UserID, c.Phone, testTypeArg(c.ReportType), stringArg(c.Date))
	if err != nil {
		slog.Error("PostgresStore SaveRetrievalCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save retrieval cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRetrievalCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_retrievals WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteRetrievalCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete retrieval cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAppointment(a models.Appointment) error {
	_, err := s.db.Exec(`INSERT INTO appointments (id, patient_id, lab_id, scheduled_at, status, test_type, home_visit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.PatientID, a.LabID, a.ScheduledAt, string(a.Status), string(a.TestType), a.HomeVisit)
	if err != nil {
		slog.Error("PostgresStore CreateAppointment failed", "error", err, "patientID", a.PatientID)
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("PostgresStore CreateAppointment succeeded", "patientID", a.PatientID, "status", a.Status)
	return nil
}

func (s *PostgresStore) ListAppointmentsByPatient(patientID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, patient_id, lab_id, scheduled_at, status, test_type, home_visit
		FROM appointments WHERE patient_id = $1 ORDER BY scheduled_at DESC`, patientID)
	if err != nil {
		slog.Error("PostgresStore ListAppointmentsByPatient query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.LabID, &a.ScheduledAt, &a.Status, &a.TestType, &a.HomeVisit); err != nil {
			slog.Error("PostgresStore ListAppointmentsByPatient scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, patient_id, lab_id, scheduled_at, status, test_type, home_visit
		FROM appointments WHERE scheduled_at >= $1 AND scheduled_at < $2 ORDER BY scheduled_at`, from, to)
	if err != nil {
		slog.Error("PostgresStore ListAppointmentsBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.LabID, &a.ScheduledAt, &a.Status, &a.TestType, &a.HomeVisit); err != nil {
			slog.Error("PostgresStore ListAppointmentsBetween scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) CreateReport(r models.Report) error {
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO reports (id, user_id, phone, media_url, report_type, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.UserID, r.Phone, r.MediaURL, string(r.ReportType), r.UploadedAt)
	if err != nil {
		slog.Error("PostgresStore CreateReport failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert report: %w", err)
	}
	slog.Debug("PostgresStore CreateReport succeeded", "userID", r.UserID, "reportType", r.ReportType)
	return nil
}

func (s *PostgresStore) ListReportsByUser(userID string) ([]models.Report, error) {
	rows, err := s.db.Query(`SELECT id, user_id, phone, media_url, report_type, uploaded_at
		FROM reports WHERE user_id = $1 ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListReportsByUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var result []models.Report
	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.ID, &r.UserID, &r.Phone, &r.MediaURL, &r.ReportType, &r.UploadedAt); err != nil {
			slog.Error("PostgresStore ListReportsByUser scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) LatestReportBefore(userID string, reportType models.TestType, before time.Time) (*models.Report, error) {
	var r models.Report
	err := s.db.QueryRow(`SELECT id, user_id, phone, media_url, report_type, uploaded_at FROM reports
		WHERE user_id = $1 AND report_type = $2 AND uploaded_at < $3
		ORDER BY uploaded_at DESC LIMIT 1`, userID, string(reportType), before).
		Scan(&r.ID, &r.UserID, &r.Phone, &r.MediaURL, &r.ReportType, &r.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LatestReportBefore failed", "error", err, "userID", userID, "reportType", reportType)
		return nil, fmt.Errorf("failed to query latest report: %w", err)
	}
	return &r, nil
}
