package flow

import (
	"context"
	"testing"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestNextBookingState(t *testing.T) {
	blood := models.TestTypeBlood
	xray := models.TestTypeXRay

	tests := []struct {
		name      string
		cache     models.BookingCache
		firstTurn bool
		want      BookingState
	}{
		{
			name:      "empty record prompts for type",
			cache:     models.BookingCache{},
			firstTurn: true,
			want:      BookingAwaitType,
		},
		{
			name:      "type known prompts for date",
			cache:     models.BookingCache{TestType: &xray},
			firstTurn: true,
			want:      BookingAwaitDate,
		},
		{
			name:      "type and date known prompts for time",
			cache:     models.BookingCache{TestType: &xray, Date: ptr("2026-03-11")},
			firstTurn: true,
			want:      BookingAwaitTime,
		},
		{
			name: "non-home type with all fields is ready",
			cache: models.BookingCache{
				TestType: &xray, Date: ptr("2026-03-11"), Time: ptr("09:00:00"),
			},
			firstTurn: true,
			want:      BookingReady,
		},
		{
			name: "home-capable type with all fields still needs home choice",
			cache: models.BookingCache{
				TestType: &blood, Date: ptr("2026-03-11"), Time: ptr("09:00:00"),
			},
			firstTurn: true,
			want:      BookingAwaitHomeChoice,
		},
		{
			name:      "first turn asks mandatory fields before home choice",
			cache:     models.BookingCache{TestType: &blood},
			firstTurn: true,
			want:      BookingAwaitDate,
		},
		{
			name:      "later turns ask home choice before remaining fields",
			cache:     models.BookingCache{TestType: &blood},
			firstTurn: false,
			want:      BookingAwaitHomeChoice,
		},
		{
			name: "answered home choice falls back to missing fields",
			cache: models.BookingCache{
				TestType: &blood, HomeVisit: ptr(true),
			},
			firstTurn: false,
			want:      BookingAwaitDate,
		},
		{
			name: "declined home visit with all fields is ready",
			cache: models.BookingCache{
				TestType: &blood, Date: ptr("2026-03-11"), Time: ptr("09:00:00"), HomeVisit: ptr(false),
			},
			firstTurn: false,
			want:      BookingReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextBookingState(tt.cache, tt.firstTurn); got != tt.want {
				t.Errorf("NextBookingState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingSingleMessageThenHomeVisit(t *testing.T) {
	e := newEnv(t)

	// Every mandatory field arrives in one message, but blood tests still
	// require the home-visit answer before committing.
	reply := e.send(t, "I want a blood test tomorrow at 9am")
	if reply != bookingPromptHomeVisit {
		t.Fatalf("first reply = %q, want home-visit prompt", reply)
	}

	reply = e.send(t, "YES")
	if reply != bookingReplyBooked {
		t.Fatalf("second reply = %q, want booking confirmation", reply)
	}

	appts, err := e.store.ListAppointmentsByPatient(testUserID)
	if err != nil {
		t.Fatalf("ListAppointmentsByPatient failed: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	appt := appts[0]
	if appt.TestType != models.TestTypeBlood {
		t.Errorf("test type = %v, want BLOOD_TEST", appt.TestType)
	}
	if appt.Status != models.AppointmentStatusHome {
		t.Errorf("status = %v, want HOME", appt.Status)
	}
	if !appt.HomeVisit {
		t.Error("home visit flag not set")
	}
	if appt.LabID != testLabID {
		t.Errorf("lab ID = %q, want %q", appt.LabID, testLabID)
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local)
	if !appt.ScheduledAt.Equal(want) {
		t.Errorf("scheduled at = %v, want %v", appt.ScheduledAt, want)
	}

	// Commit cleans up conversation state.
	if cache, _ := e.store.GetBookingCache(testUserID); cache != nil {
		t.Errorf("booking cache survived commit: %+v", cache)
	}
	if intent := e.openIntent(t); intent != nil {
		t.Errorf("intent still open after commit: %+v", intent)
	}
}

func TestBookingFieldByField(t *testing.T) {
	e := newEnv(t)

	steps := []struct {
		body string
		want string
	}{
		{"Book an appointment", bookingPromptType},
		{"xray", bookingPromptDate},
		{"tomorrow", bookingPromptTime},
		{"morning", bookingReplyBooked},
	}
	for _, step := range steps {
		if reply := e.send(t, step.body); reply != step.want {
			t.Fatalf("reply to %q = %q, want %q", step.body, reply, step.want)
		}
	}

	appts, err := e.store.ListAppointmentsByPatient(testUserID)
	if err != nil {
		t.Fatalf("ListAppointmentsByPatient failed: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	appt := appts[0]
	if appt.Status != models.AppointmentStatusPending {
		t.Errorf("status = %v, want PENDING", appt.Status)
	}
	if appt.HomeVisit {
		t.Error("x-ray booking should not be a home visit")
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local)
	if !appt.ScheduledAt.Equal(want) {
		t.Errorf("scheduled at = %v, want %v", appt.ScheduledAt, want)
	}
}

func TestBookingHomeVisitDeclined(t *testing.T) {
	e := newEnv(t)

	e.send(t, "book a urine test for today at 14:30")
	reply := e.send(t, "no")
	if reply != bookingReplyBooked {
		t.Fatalf("reply = %q, want booking confirmation", reply)
	}

	appts, _ := e.store.ListAppointmentsByPatient(testUserID)
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	if appts[0].Status != models.AppointmentStatusPending {
		t.Errorf("status = %v, want PENDING", appts[0].Status)
	}
	if appts[0].HomeVisit {
		t.Error("declined home visit still flagged")
	}
}

func TestBookingHomePromptRepeatsUntilAnswered(t *testing.T) {
	e := newEnv(t)

	e.send(t, "book a blood test")
	// Date arrives but the home question, once due, keeps firing.
	if reply := e.send(t, "tomorrow"); reply != bookingPromptHomeVisit {
		t.Fatalf("reply = %q, want home-visit prompt", reply)
	}
	if reply := e.send(t, "at 10am"); reply != bookingPromptHomeVisit {
		t.Fatalf("reply = %q, want home-visit prompt again", reply)
	}

	// Fields sent alongside the repeated prompts were still captured.
	cache, err := e.store.GetBookingCache(testUserID)
	if err != nil || cache == nil {
		t.Fatalf("GetBookingCache = %+v, %v", cache, err)
	}
	if cache.Date == nil || *cache.Date != "2026-03-11" {
		t.Errorf("cache date = %v, want 2026-03-11", cache.Date)
	}
	if cache.Time == nil || *cache.Time != "10:00:00" {
		t.Errorf("cache time = %v, want 10:00:00", cache.Time)
	}

	if reply := e.send(t, "yes"); reply != bookingReplyBooked {
		t.Fatalf("reply = %q, want booking confirmation", reply)
	}
}

func TestBookingFirstValueWins(t *testing.T) {
	e := newEnv(t)

	e.send(t, "book an mri for tomorrow")
	// A contradictory date later in the flow does not overwrite the first.
	if reply := e.send(t, "actually make it 25/12/2026 at 5pm"); reply != bookingReplyBooked {
		t.Fatalf("reply = %q, want booking confirmation", reply)
	}

	appts, _ := e.store.ListAppointmentsByPatient(testUserID)
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	want := time.Date(2026, 3, 11, 17, 0, 0, 0, time.Local)
	if !appts[0].ScheduledAt.Equal(want) {
		t.Errorf("scheduled at = %v, want %v", appts[0].ScheduledAt, want)
	}
}

func TestBookingRequiresAddress(t *testing.T) {
	e := newEnv(t)
	const phone = "918800112233"
	if err := e.store.CreateUser(models.User{ID: "u_noaddr", Phone: phone}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	reply, _ := e.router.Dispatch(context.Background(), models.InboundMessage{From: phone, Body: "book a blood test"})
	if reply != bookingReplyNoAddress {
		t.Errorf("reply = %q, want address notice", reply)
	}
	if cache, _ := e.store.GetBookingCache("u_noaddr"); cache != nil {
		t.Errorf("cache created despite missing address: %+v", cache)
	}
}
