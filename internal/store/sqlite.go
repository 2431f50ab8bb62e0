// Package store provides storage backends for LabFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/labflowhq/labflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

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
		return nil, fmt.Errorf("database DSN not set")
	}

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

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) GetUserByPhone(phone string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, phone, name FROM users WHERE phone = ?`, phone).
		Scan(&u.ID, &u.Phone, &name)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *SQLiteStore) GetUserByID(id string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, phone, name FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Phone, &name)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByID not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByID failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *SQLiteStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO users (id, phone, name) VALUES (?, ?, ?)`,
		u.ID, u.Phone, nilIfEmpty(u.Name))
	if err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PatientHasAddress(userID string) (bool, error) {
	var address sql.NullString
	err := s.db.QueryRow(`SELECT address FROM patients WHERE user_id = ?`, userID).Scan(&address)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore PatientHasAddress failed", "error", err, "userID", userID)
		return false, fmt.Errorf("failed to query patient address: %w", err)
	}
	return address.Valid && address.String != "", nil
}

func (s *SQLiteStore) SavePatient(p models.Patient) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO patients (user_id, address) VALUES (?, ?)`,
		p.UserID, nilIfEmpty(p.Address))
	if err != nil {
		slog.Error("SQLiteStore SavePatient failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save patient: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestIncompleteIntent(phone string) (*models.Intent, error) {
	var it models.Intent
	var completed int
	err := s.db.QueryRow(`SELECT id, phone, user_id, kind, completed, updated_at FROM intents
		WHERE phone = ? AND completed = 0 ORDER BY updated_at DESC LIMIT 1`, phone).
		Scan(&it.ID, &it.Phone, &it.UserID, &it.Kind, &completed, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestIncompleteIntent failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query latest incomplete intent: %w", err)
	}
	it.Completed = completed != 0
	return &it, nil
}

func (s *SQLiteStore) CreateIntent(intent models.Intent) error {
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO intents (id, phone, user_id, kind, completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.Phone, intent.UserID, string(intent.Kind), boolToInt(intent.Completed), intent.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateIntent failed", "error", err, "phone", intent.Phone, "kind", intent.Kind)
		return fmt.Errorf("failed to insert intent: %w", err)
	}
	slog.Debug("SQLiteStore CreateIntent succeeded", "phone", intent.Phone, "kind", intent.Kind)
	return nil
}

func (s *SQLiteStore) CompleteIntent(phone string, kind models.IntentKind) error {
	_, err := s.db.Exec(`UPDATE intents SET completed = 1, updated_at = ? WHERE phone = ? AND kind = ? AND completed = 0`,
		time.Now(), phone, string(kind))
	if err != nil {
		slog.Error("SQLiteStore CompleteIntent failed", "error", err, "phone", phone, "kind", kind)
		return fmt.Errorf("failed to complete intent: %w", err)
	}
	slog.Debug("SQLiteStore CompleteIntent succeeded", "phone", phone, "kind", kind)
	return nil
}

func (s *SQLiteStore) GetBookingCache(userID string) (*models.BookingCache, error) {
	var c models.BookingCache
	var addressChecked int
	var testType, date, timeOfTest sql.NullString
	var homeVisit sql.NullBool
	err := s.db.QueryRow(`SELECT user_id, phone, address_checked, test_type, date_of_test, time_of_test, home_visit
		FROM cache_bookings WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Phone, &addressChecked, &testType, &date, &timeOfTest, &homeVisit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBookingCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query booking cache: %w", err)
	}
	c.AddressChecked = addressChecked != 0
	c.TestType = nullTestType(testType)
	c.Date = nullString(date)
	c.Time = nullString(timeOfTest)
	c.HomeVisit = nullBool(homeVisit)
	return &c, nil
}

func (s *SQLiteStore) SaveBookingCache(c models.BookingCache) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache_bookings
		(user_id, phone, address_checked, test_type, date_of_test, time_of_test, home_visit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Phone, boolToInt(c.AddressChecked), testTypeArg(c.TestType), stringArg(c.Date), stringArg(c.Time), boolArg(c.HomeVisit))
	if err != nil {
		slog.Error("SQLiteStore SaveBookingCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save booking cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteBookingCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_bookings WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteBookingCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete booking cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUploadCache(userID string) (*models.UploadCache, error) {
	var c models.UploadCache
	var mediaURL, reportType sql.NullString
	err := s.db.QueryRow(`SELECT user_id, phone, media_url, report_type FROM cache_uploads WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Phone, &mediaURL, &reportType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUploadCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query upload cache: %w", err)
	}
	c.MediaURL = nullString(mediaURL)
	c.ReportType = nullTestType(reportType)
	return &c, nil
}

func (s *SQLiteStore) SaveUploadCache(c models.UploadCache) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache_uploads (user_id, phone, media_url, report_type)
		VALUES (?, ?, ?, ?)`,
		c.UserID, c.Phone, stringArg(c.MediaURL), testTypeArg(c.ReportType))
	if err != nil {
		slog.Error("SQLiteStore SaveUploadCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save upload cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteUploadCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_uploads WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteUploadCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete upload cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRetrievalCache(userID string) (*models.RetrievalCache, error) {
	var c models.RetrievalCache
	var reportType, date sql.NullString
	err := s.db.QueryRow(`SELECT user_id, phone, report_type, date_of_report FROM cache_retrievals WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Phone, &reportType, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetRetrievalCache failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query retrieval cache: %w", err)
	}
	c.ReportType = nullTestType(reportType)
	c.Date = nullString(date)
	return &c, nil
}

func (s *SQLiteStore) SaveRetrievalCache(c models.RetrievalCache) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache_retrievals (user_id, phone, report_type, date_of_report)
		VALUES (?, ?, ?, ?)`,
		c.UserID, c.Phone, testTypeArg(c.ReportType), stringArg(c.Date))
	if err != nil {
		slog.Error("SQLiteStore SaveRetrievalCache failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save retrieval cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRetrievalCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cache_retrievals WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteRetrievalCache failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete retrieval cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAppointment(a models.Appointment) error {
	_, err := s.db.Exec(`INSERT INTO appointments (id, patient_id, lab_id, scheduled_at, status, test_type, home_visit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.LabID, a.ScheduledAt, string(a.Status), string(a.TestType), boolToInt(a.HomeVisit))
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment failed", "error", err, "patientID", a.PatientID)
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("SQLiteStore CreateAppointment succeeded", "patientID", a.PatientID, "status", a.Status)
	return nil
}

func (s *SQLiteStore) ListAppointmentsByPatient(patientID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, patient_id, lab_id, scheduled_at, status, test_type, home_visit
		FROM appointments WHERE patient_id = ? ORDER BY scheduled_at DESC`, patientID)
	if err != nil {
		slog.Error("SQLiteStore ListAppointmentsByPatient query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []models.Appointment
	for rows.Next() {
		var a models.Appointment
		var homeVisit int
		if err := rows.Scan(&a.ID, &a.PatientID, &a.LabID, &a.ScheduledAt, &a.Status, &a.TestType, &homeVisit); err != nil {
			slog.Error("SQLiteStore ListAppointmentsByPatient scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		a.HomeVisit = homeVisit != 0
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, patient_id, lab_id, scheduled_at, status, test_type, home_visit
		FROM appointments WHERE scheduled_at >= ? AND scheduled_at < ? ORDER BY scheduled_at`, from, to)
	if err != nil {
		slog.Error("SQLiteStore ListAppointmentsBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []models.Appointment
	for rows.Next() {
		var a models.Appointment
		var homeVisit int
		if err := rows.Scan(&a.ID, &a.PatientID, &a.LabID, &a.ScheduledAt, &a.Status, &a.TestType, &homeVisit); err != nil {
			slog.Error("SQLiteStore ListAppointmentsBetween scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		a.HomeVisit = homeVisit != 0
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) CreateReport(r models.Report) error {
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO reports (id, user_id, phone, media_url, report_type, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Phone, r.MediaURL, string(r.ReportType), r.UploadedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateReport failed", "error", err, "userID", r.UserID)
		return fmt.Errorf("failed to insert report: %w", err)
	}
	slog.Debug("SQLiteStore CreateReport succeeded", "userID", r.UserID, "reportType", r.ReportType)
	return nil
}

func (s *SQLiteStore) ListReportsByUser(userID string) ([]models.Report, error) {
	rows, err := s.db.Query(`SELECT id, user_id, phone, media_url, report_type, uploaded_at
		FROM reports WHERE user_id = ? ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListReportsByUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var result []models.Report
	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.ID, &r.UserID, &r.Phone, &r.MediaURL, &r.ReportType, &r.UploadedAt); err != nil {
			slog.Error("SQLiteStore ListReportsByUser scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) LatestReportBefore(userID string, reportType models.TestType, before time.Time) (*models.Report, error) {
	var r models.Report
	err := s.db.QueryRow(`SELECT id, user_id, phone, media_url, report_type, uploaded_at FROM reports
		WHERE user_id = ? AND report_type = ? AND uploaded_at < ?
		ORDER BY uploaded_at DESC LIMIT 1`, userID, string(reportType), before).
		Scan(&r.ID, &r.UserID, &r.Phone, &r.MediaURL, &r.ReportType, &r.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LatestReportBefore failed", "error", err, "userID", userID, "reportType", reportType)
		return nil, fmt.Errorf("failed to query latest report: %w", err)
	}
	return &r, nil
}
