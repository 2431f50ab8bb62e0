package models

import "testing"

func ptr[T any](v T) *T { return &v }

func TestMergeBookingFillsOnlyEmptyFields(t *testing.T) {
	existing := BookingCache{
		UserID:   "u_1",
		Phone:    "919876543210",
		TestType: ptr(TestTypeBlood),
	}
	update := BookingUpdate{
		TestType: ptr(TestTypeXRay), // must lose to the existing value
		Date:     ptr("2026-03-11"),
		Time:     ptr("09:00:00"),
	}

	merged, changed := MergeBooking(existing, update)
	if !changed {
		t.Fatal("expected merge to report a change")
	}
	if *merged.TestType != TestTypeBlood {
		t.Errorf("TestType = %s, existing value should win", *merged.TestType)
	}
	if merged.Date == nil || *merged.Date != "2026-03-11" {
		t.Errorf("Date = %v, want 2026-03-11", merged.Date)
	}
	if merged.Time == nil || *merged.Time != "09:00:00" {
		t.Errorf("Time = %v, want 09:00:00", merged.Time)
	}
	if merged.HomeVisit != nil {
		t.Errorf("HomeVisit should stay nil, got %v", *merged.HomeVisit)
	}
}

func TestMergeBookingNoNewValues(t *testing.T) {
	existing := BookingCache{
		UserID:    "u_1",
		TestType:  ptr(TestTypeMRI),
		Date:      ptr("2026-03-11"),
		Time:      ptr("09:00:00"),
		HomeVisit: ptr(false),
	}

	merged, changed := MergeBooking(existing, BookingUpdate{TestType: ptr(TestTypeCT)})
	if changed {
		t.Error("fully populated record must never change")
	}
	if *merged.TestType != TestTypeMRI {
		t.Errorf("TestType = %s, want MRI", *merged.TestType)
	}

	if _, changed := MergeBooking(existing, BookingUpdate{}); changed {
		t.Error("empty update must not report a change")
	}
}

func TestMergeBookingHomeVisitFalseIsAValue(t *testing.T) {
	merged, changed := MergeBooking(BookingCache{UserID: "u_1"}, BookingUpdate{HomeVisit: ptr(false)})
	if !changed {
		t.Fatal("declining the home visit is still an answer")
	}
	if merged.HomeVisit == nil || *merged.HomeVisit {
		t.Errorf("HomeVisit = %v, want false", merged.HomeVisit)
	}

	// A later YES must not overwrite the recorded NO.
	merged, changed = MergeBooking(merged, BookingUpdate{HomeVisit: ptr(true)})
	if changed {
		t.Error("answered question must not change")
	}
	if *merged.HomeVisit {
		t.Error("recorded NO was overwritten")
	}
}

func TestMergeUpload(t *testing.T) {
	merged, changed := MergeUpload(UploadCache{UserID: "u_1"}, UploadUpdate{MediaURL: ptr("https://cdn.example.com/a.pdf")})
	if !changed || merged.MediaURL == nil {
		t.Fatalf("expected media URL to be captured, got %+v", merged)
	}

	merged, changed = MergeUpload(merged, UploadUpdate{
		MediaURL:   ptr("https://cdn.example.com/b.pdf"),
		ReportType: ptr(TestTypeECG),
	})
	if !changed {
		t.Fatal("expected report type to be captured")
	}
	if *merged.MediaURL != "https://cdn.example.com/a.pdf" {
		t.Errorf("MediaURL = %s, first value should win", *merged.MediaURL)
	}
	if *merged.ReportType != TestTypeECG {
		t.Errorf("ReportType = %s, want ECG", *merged.ReportType)
	}
}

func TestMergeRetrieval(t *testing.T) {
	merged, changed := MergeRetrieval(RetrievalCache{UserID: "u_1"}, RetrievalUpdate{ReportType: ptr(TestTypeBlood)})
	if !changed || merged.ReportType == nil {
		t.Fatalf("expected report type to be captured, got %+v", merged)
	}
	if merged.Date != nil {
		t.Errorf("Date should stay nil, got %v", *merged.Date)
	}

	merged, changed = MergeRetrieval(merged, RetrievalUpdate{Date: ptr("2026-03-01")})
	if !changed || merged.Date == nil || *merged.Date != "2026-03-01" {
		t.Fatalf("expected date to be captured, got %+v", merged)
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(BookingUpdate{}).Empty() {
		t.Error("zero BookingUpdate should be empty")
	}
	if (BookingUpdate{HomeVisit: ptr(false)}).Empty() {
		t.Error("BookingUpdate with a value should not be empty")
	}
	if !(UploadUpdate{}).Empty() {
		t.Error("zero UploadUpdate should be empty")
	}
	if (UploadUpdate{ReportType: ptr(TestTypeBlood)}).Empty() {
		t.Error("UploadUpdate with a value should not be empty")
	}
	if !(RetrievalUpdate{}).Empty() {
		t.Error("zero RetrievalUpdate should be empty")
	}
	if (RetrievalUpdate{Date: ptr("2026-03-01")}).Empty() {
		t.Error("RetrievalUpdate with a value should not be empty")
	}
}
