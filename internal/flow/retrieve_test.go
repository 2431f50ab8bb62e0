package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

func seedReport(t *testing.T, e *env, reportType models.TestType, uploadedAt time.Time, url string) {
	t.Helper()
	err := e.store.CreateReport(models.Report{
		ID:         "r_" + url,
		UserID:     testUserID,
		Phone:      testPhone,
		MediaURL:   url,
		ReportType: reportType,
		UploadedAt: uploadedAt,
	})
	if err != nil {
		t.Fatalf("failed to seed report: %v", err)
	}
}

func TestRetrieveNewestMatchingReport(t *testing.T) {
	e := newEnv(t)
	seedReport(t, e, models.TestTypeBlood, time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local), "https://cdn.example.com/old.pdf")
	seedReport(t, e, models.TestTypeBlood, time.Date(2026, 2, 20, 10, 0, 0, 0, time.Local), "https://cdn.example.com/new.pdf")
	// Newer than the requested date; must not be returned.
	seedReport(t, e, models.TestTypeBlood, time.Date(2026, 3, 9, 10, 0, 0, 0, time.Local), "https://cdn.example.com/too-new.pdf")

	if reply := e.send(t, "retrieve my blood report"); reply != retrievePromptDate {
		t.Fatalf("reply = %q, want date prompt", reply)
	}
	reply := e.send(t, "2026-03-01")
	if !strings.Contains(reply, "https://cdn.example.com/new.pdf") {
		t.Fatalf("reply = %q, want link to the newest report on or before the date", reply)
	}

	// Lookup closes the flow either way.
	if cache, _ := e.store.GetRetrievalCache(testUserID); cache != nil {
		t.Errorf("retrieval cache survived lookup: %+v", cache)
	}
	if intent := e.openIntent(t); intent != nil {
		t.Errorf("intent still open after lookup: %+v", intent)
	}
}

func TestRetrieveNoMatchClosesFlow(t *testing.T) {
	e := newEnv(t)
	seedReport(t, e, models.TestTypeBlood, time.Date(2026, 2, 20, 10, 0, 0, 0, time.Local), "https://cdn.example.com/blood.pdf")

	if reply := e.send(t, "retrieve my mri scan"); reply != retrievePromptDate {
		t.Fatalf("reply = %q, want date prompt", reply)
	}
	reply := e.send(t, "today")

	if !strings.Contains(reply, "No MRI report found") {
		t.Fatalf("reply = %q, want no-report notice", reply)
	}
	if intent := e.openIntent(t); intent != nil {
		t.Errorf("intent still open after miss: %+v", intent)
	}

	// A fresh request can start over with different details.
	if reply := e.send(t, "retrieve my blood report"); reply != retrievePromptDate {
		t.Errorf("follow-up reply = %q, want date prompt", reply)
	}
}

func TestRetrievePromptsForMissingFields(t *testing.T) {
	e := newEnv(t)

	if reply := e.send(t, "I need to fetch an old document"); reply != retrievePromptType {
		t.Fatalf("reply = %q, want type prompt", reply)
	}
	if reply := e.send(t, "urine"); reply != retrievePromptDate {
		t.Fatalf("reply = %q, want date prompt", reply)
	}
}
