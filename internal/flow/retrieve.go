package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labflowhq/labflow/internal/extract"
	"github.com/labflowhq/labflow/internal/metrics"
	"github.com/labflowhq/labflow/internal/models"
)

// Retrieval prompts and replies.
const (
	retrievePromptType    = "📄 Please specify the type of report (e.g., BLOOD, XRAY)."
	retrievePromptDate    = "📅 Please specify a date for the report."
	retrieveReplyTryAgain = "⚠️ Error retrieving document. Please try again."
)

// RetrieveHandler runs the document retrieval flow.
type RetrieveHandler struct {
	deps Dependencies
}

// NewRetrieveHandler creates the retrieval flow handler.
func NewRetrieveHandler(deps Dependencies) *RetrieveHandler {
	return &RetrieveHandler{deps: deps}
}

// Kind returns the intent kind this handler serves.
func (h *RetrieveHandler) Kind() models.IntentKind { return models.IntentRetrieveDocument }

// Handle folds one message into the retrieval scratch record and, once the
// report type and target date are known, looks up the newest matching
// report. Both outcomes of the lookup close the flow: a hit returns the
// document link, a miss tells the user and resets so a fresh request can
// use different details.
func (h *RetrieveHandler) Handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	user, err := resolveUser(h.deps.Store, msg.From)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return replyUserNotFound, nil
		}
		slog.Error("RetrieveHandler user lookup failed", "error", err, "phone", msg.From)
		return retrieveReplyTryAgain, err
	}

	existing, err := h.deps.Cache.GetRetrievalCache(user.ID)
	if err != nil {
		slog.Error("RetrieveHandler cache read failed", "error", err, "userID", user.ID)
		return retrieveReplyTryAgain, err
	}
	record := models.RetrievalCache{UserID: user.ID, Phone: msg.From}
	if existing != nil {
		record = *existing
	}

	update := models.RetrievalUpdate{
		ReportType: extract.TestType(msg.Body),
		Date:       extract.Date(msg.Body, h.deps.now()),
	}
	record, _ = models.MergeRetrieval(record, update)

	if err := h.deps.Cache.SaveRetrievalCache(record); err != nil {
		slog.Error("RetrieveHandler cache save failed", "error", err, "userID", user.ID)
		return retrieveReplyTryAgain, err
	}

	switch {
	case record.ReportType == nil:
		return retrievePromptType, nil
	case record.Date == nil:
		return retrievePromptDate, nil
	}

	return h.lookup(user, record)
}

// lookup finds the newest report of the requested type uploaded on or
// before the requested date and closes the flow.
func (h *RetrieveHandler) lookup(user *models.User, c models.RetrievalCache) (string, error) {
	day, err := time.ParseInLocation("2006-01-02", *c.Date, time.Local)
	if err != nil {
		metrics.CommitFailures.WithLabelValues(string(models.IntentRetrieveDocument)).Inc()
		slog.Error("RetrieveHandler stored date unparseable", "error", err, "date", *c.Date)
		return retrieveReplyTryAgain, err
	}
	cutoff := day.AddDate(0, 0, 1)

	report, err := h.deps.Store.LatestReportBefore(user.ID, *c.ReportType, cutoff)
	if err != nil {
		slog.Error("RetrieveHandler report lookup failed", "error", err, "userID", user.ID)
		return retrieveReplyTryAgain, err
	}

	h.close(user)

	if report == nil {
		slog.Info("RetrieveHandler no report matched", "userID", user.ID,
			"reportType", *c.ReportType, "date", *c.Date)
		return fmt.Sprintf("⚠️ No %s report found on or before %s. Send a new request to search with different details.",
			*c.ReportType, *c.Date), nil
	}

	slog.Info("RetrieveHandler report retrieved", "userID", user.ID, "reportID", report.ID)
	return fmt.Sprintf("✅ Document retrieved successfully. Link: %s", report.MediaURL), nil
}

// close clears the scratch record and completes the intent.
func (h *RetrieveHandler) close(user *models.User) {
	if err := h.deps.Cache.DeleteRetrievalCache(user.ID); err != nil {
		slog.Warn("RetrieveHandler cache cleanup failed", "error", err, "userID", user.ID)
	}
	if err := h.deps.Store.CompleteIntent(user.Phone, models.IntentRetrieveDocument); err != nil {
		slog.Warn("RetrieveHandler intent completion failed", "error", err, "phone", user.Phone)
	}
	metrics.IntentsCompleted.WithLabelValues(string(models.IntentRetrieveDocument)).Inc()
}
