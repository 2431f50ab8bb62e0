package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

func TestUploadSingleMessageCommit(t *testing.T) {
	e := newEnv(t)

	reply := e.sendMedia(t, "upload my xray report",
		"https://api.twilio.com/media/ME123", "image/jpeg")
	if reply != uploadReplyStored {
		t.Fatalf("reply = %q, want stored confirmation", reply)
	}

	if len(e.media.calls) != 1 || e.media.calls[0] != "https://api.twilio.com/media/ME123" {
		t.Errorf("media calls = %v, want the gateway URL", e.media.calls)
	}

	reports, err := e.store.ListReportsByUser(testUserID)
	if err != nil {
		t.Fatalf("ListReportsByUser failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.ReportType != models.TestTypeXRay {
		t.Errorf("report type = %v, want X_RAY", r.ReportType)
	}
	if r.MediaURL != e.media.url {
		t.Errorf("media URL = %q, want durable URL %q", r.MediaURL, e.media.url)
	}
	if r.Phone != testPhone {
		t.Errorf("phone = %q, want %q", r.Phone, testPhone)
	}

	// The insight service is told about the new document in the background.
	select {
	case url := <-e.insight.extracted:
		if url != e.media.url {
			t.Errorf("extraction URL = %q, want %q", url, e.media.url)
		}
	case <-time.After(2 * time.Second):
		t.Error("extraction notification never sent")
	}

	if cache, _ := e.store.GetUploadCache(testUserID); cache != nil {
		t.Errorf("upload cache survived commit: %+v", cache)
	}
	if intent := e.openIntent(t); intent != nil {
		t.Errorf("intent still open after commit: %+v", intent)
	}
}

func TestUploadFieldByField(t *testing.T) {
	e := newEnv(t)

	if reply := e.send(t, "I want to upload a document"); reply != uploadPromptDocument {
		t.Fatalf("reply = %q, want document prompt", reply)
	}
	if reply := e.sendMedia(t, "", "https://api.twilio.com/media/ME456", "application/pdf"); reply != uploadPromptType {
		t.Fatalf("reply = %q, want type prompt", reply)
	}
	if reply := e.send(t, "blood"); reply != uploadReplyStored {
		t.Fatalf("reply = %q, want stored confirmation", reply)
	}

	reports, _ := e.store.ListReportsByUser(testUserID)
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if reports[0].ReportType != models.TestTypeBlood {
		t.Errorf("report type = %v, want BLOOD_TEST", reports[0].ReportType)
	}
}

func TestUploadMediaTransferFailureKeepsFlowAlive(t *testing.T) {
	e := newEnv(t)
	e.media.err = errors.New("gateway timeout")

	e.send(t, "upload my report")
	reply := e.sendMedia(t, "", "https://api.twilio.com/media/ME789", "application/pdf")
	if reply != uploadPromptDocument {
		t.Fatalf("reply = %q, want document prompt after failed transfer", reply)
	}

	// The transfer recovers and the flow picks up where it left off.
	e.media.err = nil
	if reply := e.sendMedia(t, "ecg", "https://api.twilio.com/media/ME789", "application/pdf"); reply != uploadReplyStored {
		t.Fatalf("reply = %q, want stored confirmation", reply)
	}

	reports, _ := e.store.ListReportsByUser(testUserID)
	if len(reports) != 1 || reports[0].ReportType != models.TestTypeECG {
		t.Errorf("reports = %+v, want one ECG report", reports)
	}
}
