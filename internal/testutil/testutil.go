// Package testutil provides common test utilities and helpers for LabFlow tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/labflowhq/labflow/internal/api"
	"github.com/labflowhq/labflow/internal/flow"
	"github.com/labflowhq/labflow/internal/messaging"
	"github.com/labflowhq/labflow/internal/models"
	"github.com/labflowhq/labflow/internal/store"
)

// TestingT is the subset of *testing.T the helpers need, so they can be
// exercised with a recording fake.
type TestingT interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Fixed identifiers used by NewTestServer and SeedTestData.
const (
	TestPhone  = "919876543210"
	TestUserID = "u_test1"
	TestLabID  = "lab_test"
)

// StubMedia satisfies flow.MediaStorer with a fixed URL.
type StubMedia struct{}

func (StubMedia) Store(_ context.Context, _, _ string) (string, error) {
	return "https://cdn.example.com/uploads/doc.pdf", nil
}

// NewTestServer creates a test API server with in-memory dependencies and a
// registered user with an address on file. The store and mock messaging
// service are returned for assertions.
func NewTestServer(t TestingT) (*api.Server, *store.InMemoryStore, *messaging.MockService) {
	t.Helper()

	st := store.NewInMemoryStore()
	if err := st.CreateUser(models.User{ID: TestUserID, Phone: TestPhone, Name: "Asha"}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if err := st.SavePatient(models.Patient{UserID: TestUserID, Address: "12 MG Road, Pune"}); err != nil {
		t.Fatalf("failed to seed patient: %v", err)
	}

	deps := flow.Dependencies{
		Store: st,
		Cache: st,
		Media: StubMedia{},
		Now:   func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local) },
	}
	router := flow.NewRouter(deps, nil,
		flow.NewBookingHandler(deps, TestLabID),
		flow.NewUploadHandler(deps),
		flow.NewRetrieveHandler(deps),
		flow.NewAnalyzeHandler(deps),
	)
	msgService := &messaging.MockService{}
	return api.NewServer(st, router, msgService), st, msgService
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON API response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// SeedTestData adds sample committed rows to the store for testing.
func SeedTestData(t TestingT, st store.Store) {
	t.Helper()

	appointments := []models.Appointment{
		{
			ID: "a_seed1", PatientID: TestUserID, LabID: TestLabID,
			ScheduledAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local),
			Status:      models.AppointmentStatusPending, TestType: models.TestTypeXRay,
		},
		{
			ID: "a_seed2", PatientID: TestUserID, LabID: TestLabID,
			ScheduledAt: time.Date(2026, 3, 12, 10, 0, 0, 0, time.Local),
			Status:      models.AppointmentStatusHome, TestType: models.TestTypeBlood, HomeVisit: true,
		},
	}
	for _, a := range appointments {
		if err := st.CreateAppointment(a); err != nil {
			t.Fatalf("failed to seed appointment: %v", err)
		}
	}

	reports := []models.Report{
		{
			ID: "r_seed1", UserID: TestUserID, Phone: TestPhone,
			MediaURL: "https://cdn.example.com/uploads/blood.pdf", ReportType: models.TestTypeBlood,
			UploadedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID: "r_seed2", UserID: TestUserID, Phone: TestPhone,
			MediaURL: "https://cdn.example.com/uploads/ecg.pdf", ReportType: models.TestTypeECG,
			UploadedAt: time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, r := range reports {
		if err := st.CreateReport(r); err != nil {
			t.Fatalf("failed to seed report: %v", err)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
