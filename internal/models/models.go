// Package models defines the core data structures for LabFlow.
//
// It includes the intent tracking record, the per-flow scratch cache records,
// and the committed appointment/report rows, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// IntentKind identifies which multi-turn conversation a message belongs to.
type IntentKind string

const (
	IntentBookTest         IntentKind = "BOOK_TEST"
	IntentUploadDocument   IntentKind = "UPLOAD_DOCUMENT"
	IntentRetrieveDocument IntentKind = "RETRIEVE_DOCUMENT"
	IntentAnalyzeReport    IntentKind = "ANALYZE_REPORT"
)

// IsValidIntentKind checks if the given intent kind is supported.
func IsValidIntentKind(k IntentKind) bool {
	switch k {
	case IntentBookTest, IntentUploadDocument, IntentRetrieveDocument, IntentAnalyzeReport:
		return true
	default:
		return false
	}
}

// TestType is the canonical diagnostic test / report category.
type TestType string

const (
	TestTypeBlood TestType = "BLOOD_TEST"
	TestTypeXRay  TestType = "X_RAY"
	TestTypeMRI   TestType = "MRI"
	TestTypeCT    TestType = "CT_SCAN"
	TestTypeUrine TestType = "URINE_TEST"
	TestTypeECG   TestType = "ECG"
)

// AppointmentStatus tracks an appointment through its lifecycle.
type AppointmentStatus string

const (
	AppointmentStatusHome            AppointmentStatus = "HOME"
	AppointmentStatusPending         AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed       AppointmentStatus = "CONFIRMED"
	AppointmentStatusCompleted       AppointmentStatus = "COMPLETED"
	AppointmentStatusReportGenerated AppointmentStatus = "REPORT_GENERATED"
)

// Error variables for better error handling and testability.
var (
	ErrUserNotFound    = errors.New("no user registered for phone number")
	ErrAddressMissing  = errors.New("patient has no address on file")
	ErrNoOpenIntent    = errors.New("no incomplete intent for phone number")
	ErrReportNotFound  = errors.New("no matching report found")
	ErrEmptyPhone      = errors.New("phone number cannot be empty")
	ErrUnknownIntent   = errors.New("message could not be classified into an intent")
	ErrMissingMedia    = errors.New("no media attached to message")
	ErrInvalidTestType = errors.New("unrecognized test type")
)

// User is a registered platform user, keyed externally by phone number.
type User struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// Patient carries patient profile data owned by the broader platform.
// Only the address is consulted by the conversational core.
type Patient struct {
	UserID  string `json:"user_id"`
	Address string `json:"address,omitempty"`
}

// Intent is one conversation attempt for a phone number.
//
// At most one incomplete Intent should exist per phone at any time. The
// store enforces this by completing every incomplete row for a phone when
// an intent is closed, and the router always reads the latest row.
type Intent struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	UserID    string     `json:"user_id"`
	Kind      IntentKind `json:"kind"`
	Completed bool       `json:"completed"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BookingCache is the scratch record for an in-progress booking flow.
// Nullable fields use pointers; nil means "not collected yet".
type BookingCache struct {
	UserID         string    `json:"user_id"`
	Phone          string    `json:"phone"`
	AddressChecked bool      `json:"address_checked"`
	TestType       *TestType `json:"test_type,omitempty"`
	Date           *string   `json:"date,omitempty"` // YYYY-MM-DD
	Time           *string   `json:"time,omitempty"` // HH:mm:ss
	HomeVisit      *bool     `json:"home_visit,omitempty"`
}

// UploadCache is the scratch record for an in-progress document upload.
type UploadCache struct {
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone"`
	MediaURL   *string   `json:"media_url,omitempty"`
	ReportType *TestType `json:"report_type,omitempty"`
}

// RetrievalCache is the scratch record for an in-progress document retrieval.
type RetrievalCache struct {
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone"`
	ReportType *TestType `json:"report_type,omitempty"`
	Date       *string   `json:"date,omitempty"` // YYYY-MM-DD
}

// Appointment is a committed booking, written exactly once at flow commit.
type Appointment struct {
	ID          string            `json:"id"`
	PatientID   string            `json:"patient_id"`
	LabID       string            `json:"lab_id"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Status      AppointmentStatus `json:"status"`
	TestType    TestType          `json:"test_type"`
	HomeVisit   bool              `json:"home_visit"`
}

// Report is a committed uploaded document, written exactly once at flow commit.
type Report struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone"`
	MediaURL   string    `json:"media_url"`
	ReportType TestType  `json:"report_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}
