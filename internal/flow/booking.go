package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/labflowhq/labflow/internal/extract"
	"github.com/labflowhq/labflow/internal/metrics"
	"github.com/labflowhq/labflow/internal/models"
)

// Booking prompts and replies.
const (
	bookingPromptType      = "📄 Please specify the type of test (e.g., BLOOD, XRAY)."
	bookingPromptDate      = "📅 Please specify a date for the test."
	bookingPromptTime      = "⏰ Please specify a time for the test."
	bookingPromptHomeVisit = "🏠 Do you want a home appointment? (YES/NO)"
	bookingReplyNoAddress  = "⚠️ Error: Please update your address on the portal first."
	bookingReplyTryAgain   = "⚠️ Error saving booking. Please try again."
	bookingReplyBooked     = "✅ Your test has been booked successfully!"
)

// BookingState identifies what the booking flow still owes the user.
type BookingState string

const (
	BookingAwaitType       BookingState = "AWAITING_TEST_TYPE"
	BookingAwaitDate       BookingState = "AWAITING_DATE"
	BookingAwaitTime       BookingState = "AWAITING_TIME"
	BookingAwaitHomeChoice BookingState = "AWAITING_HOME_CHOICE"
	BookingReady           BookingState = "READY"
)

// needsHomeVisitChoice reports whether a test type can be collected at home
// and therefore requires an explicit home-visit decision before booking.
func needsHomeVisitChoice(t models.TestType) bool {
	return t == models.TestTypeBlood || t == models.TestTypeUrine
}

// NextBookingState derives the flow state from a merged cache record.
//
// On the turn that creates the record the mandatory fields are prompted in
// priority order (type, date, time). On every later turn an unanswered
// home-visit question takes precedence, so it keeps firing until the user
// answers it no matter which other fields arrive.
func NextBookingState(c models.BookingCache, firstTurn bool) BookingState {
	homeChoicePending := c.TestType != nil && needsHomeVisitChoice(*c.TestType) && c.HomeVisit == nil
	if !firstTurn && homeChoicePending {
		return BookingAwaitHomeChoice
	}
	switch {
	case c.TestType == nil:
		return BookingAwaitType
	case c.Date == nil:
		return BookingAwaitDate
	case c.Time == nil:
		return BookingAwaitTime
	case homeChoicePending:
		return BookingAwaitHomeChoice
	}
	return BookingReady
}

// BookingHandler runs the test booking flow.
type BookingHandler struct {
	deps  Dependencies
	labID string
}

// NewBookingHandler creates the booking flow handler. Committed
// appointments are attributed to labID.
func NewBookingHandler(deps Dependencies, labID string) *BookingHandler {
	return &BookingHandler{deps: deps, labID: labID}
}

// Kind returns the intent kind this handler serves.
func (h *BookingHandler) Kind() models.IntentKind { return models.IntentBookTest }

// Handle folds one message into the booking scratch record and replies with
// the next prompt, an error notice, or the booking confirmation.
func (h *BookingHandler) Handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	user, err := resolveUser(h.deps.Store, msg.From)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return replyUserNotFound, nil
		}
		slog.Error("BookingHandler user lookup failed", "error", err, "phone", msg.From)
		return bookingReplyTryAgain, err
	}

	existing, err := h.deps.Cache.GetBookingCache(user.ID)
	if err != nil {
		slog.Error("BookingHandler cache read failed", "error", err, "userID", user.ID)
		return bookingReplyTryAgain, err
	}

	firstTurn := existing == nil
	record := models.BookingCache{UserID: user.ID, Phone: msg.From}
	if existing != nil {
		record = *existing
	}

	// Bookings need a delivery address on file. Checked once, before the
	// scratch record is created, so an unregistered address stops the flow
	// before any state accumulates.
	if firstTurn {
		hasAddress, err := h.deps.Store.PatientHasAddress(user.ID)
		if err != nil {
			slog.Error("BookingHandler address check failed", "error", err, "userID", user.ID)
			return bookingReplyTryAgain, err
		}
		if !hasAddress {
			slog.Info("BookingHandler rejected booking without address", "userID", user.ID)
			return bookingReplyNoAddress, nil
		}
		record.AddressChecked = true
	}

	fields := extract.Message(msg.Body, h.deps.now())
	update := models.BookingUpdate{TestType: fields.TestType, Date: fields.Date, Time: fields.Time}
	if record.HomeVisit == nil {
		// A bare YES/NO only ever answers the home-visit question.
		update.HomeVisit = fields.YesNo
	}
	record, _ = models.MergeBooking(record, update)

	if err := h.deps.Cache.SaveBookingCache(record); err != nil {
		slog.Error("BookingHandler cache save failed", "error", err, "userID", user.ID)
		return bookingReplyTryAgain, err
	}

	state := NextBookingState(record, firstTurn)
	slog.Debug("BookingHandler turn processed", "userID", user.ID, "state", state)
	switch state {
	case BookingAwaitType:
		return bookingPromptType, nil
	case BookingAwaitDate:
		return bookingPromptDate, nil
	case BookingAwaitTime:
		return bookingPromptTime, nil
	case BookingAwaitHomeChoice:
		return bookingPromptHomeVisit, nil
	}

	return h.commit(ctx, user, record)
}

// commit writes the appointment, clears the scratch record and closes the
// intent. The scratch record survives a failed appointment write so the
// user can retry by sending another message.
func (h *BookingHandler) commit(_ context.Context, user *models.User, c models.BookingCache) (string, error) {
	scheduledAt, err := time.ParseInLocation("2006-01-02 15:04:05", *c.Date+" "+*c.Time, time.Local)
	if err != nil {
		metrics.CommitFailures.WithLabelValues(string(models.IntentBookTest)).Inc()
		slog.Error("BookingHandler stored schedule unparseable", "error", err, "date", *c.Date, "time", *c.Time)
		return bookingReplyTryAgain, err
	}

	homeVisit := c.HomeVisit != nil && *c.HomeVisit
	status := models.AppointmentStatusPending
	if homeVisit {
		status = models.AppointmentStatusHome
	}

	appt := models.Appointment{
		ID:          uuid.NewString(),
		PatientID:   user.ID,
		LabID:       h.labID,
		ScheduledAt: scheduledAt,
		Status:      status,
		TestType:    *c.TestType,
		HomeVisit:   homeVisit,
	}
	if err := h.deps.Store.CreateAppointment(appt); err != nil {
		metrics.CommitFailures.WithLabelValues(string(models.IntentBookTest)).Inc()
		slog.Error("BookingHandler appointment commit failed", "error", err, "userID", user.ID)
		return bookingReplyTryAgain, err
	}

	if err := h.deps.Cache.DeleteBookingCache(user.ID); err != nil {
		slog.Warn("BookingHandler cache cleanup failed", "error", err, "userID", user.ID)
	}
	if err := h.deps.Store.CompleteIntent(user.Phone, models.IntentBookTest); err != nil {
		slog.Warn("BookingHandler intent completion failed", "error", err, "phone", user.Phone)
	}

	metrics.IntentsCompleted.WithLabelValues(string(models.IntentBookTest)).Inc()
	slog.Info("BookingHandler booking committed", "userID", user.ID, "appointmentID", appt.ID,
		"testType", appt.TestType, "scheduledAt", appt.ScheduledAt, "status", appt.Status)
	return bookingReplyBooked, nil
}
