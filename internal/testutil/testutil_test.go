package testutil

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/labflowhq/labflow/internal/models"
	"github.com/labflowhq/labflow/internal/store"
)

func TestNewTestServer(t *testing.T) {
	server, st, msgService := NewTestServer(t)
	if server == nil {
		t.Fatal("NewTestServer returned nil server")
	}
	if msgService == nil {
		t.Fatal("NewTestServer returned nil messaging service")
	}

	user, err := st.GetUserByPhone(TestPhone)
	if err != nil {
		t.Fatalf("failed to look up seeded user: %v", err)
	}
	if user == nil || user.ID != TestUserID {
		t.Errorf("expected seeded user %s, got %+v", TestUserID, user)
	}
	hasAddr, err := st.PatientHasAddress(TestUserID)
	if err != nil {
		t.Fatalf("failed to check seeded address: %v", err)
	}
	if !hasAddr {
		t.Error("seeded patient should have an address on file")
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail && !mockT.failed {
				t.Error("Expected test to fail but it passed")
			}
			if !tt.shouldFail && mockT.failed {
				t.Error("Expected test to pass but it failed")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{"valid JSON with matching status", `{"status":"ok","result":"test"}`, "ok", false},
		{"valid JSON with different status", `{"status":"error","result":"test"}`, "ok", true},
		{"invalid JSON", `{"status":}`, "ok", true},
		{"missing status field", `{"result":"test"}`, "ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			defer func() {
				if r := recover(); r != nil && !tt.shouldFail {
					t.Errorf("Unexpected panic: %v", r)
				}
			}()

			response := AssertJSONResponse(mockT, rr, tt.expectedStatus)

			if tt.shouldFail && !mockT.failed {
				t.Error("Expected test to fail but it passed")
			}
			if !tt.shouldFail && mockT.failed {
				t.Errorf("Expected test to pass but it failed: %s", mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{"GET request with no body", "GET", "/test", nil},
		{"POST request with JSON body", "POST", "/test", map[string]string{"key": "value"}},
		{"POST request with struct body", "POST", "/test", models.User{ID: "u_1", Phone: TestPhone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req == nil {
				t.Fatal("Expected request to be created, got nil")
			}
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
		})
	}
}

func TestSeedTestData(t *testing.T) {
	st := store.NewInMemoryStore()

	SeedTestData(t, st)

	appointments, err := st.ListAppointmentsByPatient(TestUserID)
	if err != nil {
		t.Fatalf("Failed to list appointments: %v", err)
	}
	if len(appointments) != 2 {
		t.Errorf("Expected 2 appointments, got %d", len(appointments))
	}

	reports, err := st.ListReportsByUser(TestUserID)
	if err != nil {
		t.Fatalf("Failed to list reports: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("Expected 2 reports, got %d", len(reports))
	}
}

func TestMustMarshalJSON(t *testing.T) {
	testData := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	result := MustMarshalJSON(t, testData)
	if len(result) == 0 {
		t.Error("Expected non-empty JSON data")
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	jsonData := []byte(`{"key":"value","number":123}`)
	var target map[string]interface{}

	MustUnmarshalJSON(t, jsonData, &target)

	if target["key"] != "value" {
		t.Errorf("Expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("Expected number to be 123, got %v", target["number"])
	}
}

// mockTestingT implements TestingT to capture helper failures.
type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() { m.helper = true }

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Error(args ...interface{}) {
	m.failed = true
	if len(args) > 0 {
		m.errorMsg = fmt.Sprintf("%v", args[0])
	}
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
	panic("test failed")
}

func (m *mockTestingT) Fatal(args ...interface{}) {
	m.failed = true
	if len(args) > 0 {
		m.errorMsg = fmt.Sprintf("%v", args[0])
	}
	panic("test failed")
}
