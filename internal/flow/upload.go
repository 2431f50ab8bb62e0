package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/labflowhq/labflow/internal/extract"
	"github.com/labflowhq/labflow/internal/metrics"
	"github.com/labflowhq/labflow/internal/models"
)

// Upload prompts and replies.
const (
	uploadPromptDocument = "📎 Please upload the document."
	uploadPromptType     = "📄 Please specify the type of report (e.g., BLOOD, XRAY)."
	uploadReplyTryAgain  = "⚠️ Error saving document. Please try again."
	uploadReplyStored    = "✅ Document uploaded successfully. You can retrieve it anytime."
)

// UploadHandler runs the document upload flow.
type UploadHandler struct {
	deps Dependencies
}

// NewUploadHandler creates the upload flow handler.
func NewUploadHandler(deps Dependencies) *UploadHandler {
	return &UploadHandler{deps: deps}
}

// Kind returns the intent kind this handler serves.
func (h *UploadHandler) Kind() models.IntentKind { return models.IntentUploadDocument }

// Handle stores any attached media durably, folds the turn into the upload
// scratch record, and commits once both the document and its type are known.
func (h *UploadHandler) Handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	user, err := resolveUser(h.deps.Store, msg.From)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return replyUserNotFound, nil
		}
		slog.Error("UploadHandler user lookup failed", "error", err, "phone", msg.From)
		return uploadReplyTryAgain, err
	}

	existing, err := h.deps.Cache.GetUploadCache(user.ID)
	if err != nil {
		slog.Error("UploadHandler cache read failed", "error", err, "userID", user.ID)
		return uploadReplyTryAgain, err
	}
	record := models.UploadCache{UserID: user.ID, Phone: msg.From}
	if existing != nil {
		record = *existing
	}

	update := models.UploadUpdate{ReportType: extract.TestType(msg.Body)}
	if msg.HasMedia() {
		// A failed transfer keeps the flow alive; the next prompt asks the
		// user to resend the document.
		url, err := h.deps.Media.Store(ctx, msg.MediaURL, msg.MediaContentType)
		if err != nil {
			slog.Error("UploadHandler media transfer failed", "error", err, "userID", user.ID)
		} else {
			update.MediaURL = &url
		}
	}
	record, _ = models.MergeUpload(record, update)

	if err := h.deps.Cache.SaveUploadCache(record); err != nil {
		slog.Error("UploadHandler cache save failed", "error", err, "userID", user.ID)
		return uploadReplyTryAgain, err
	}

	switch {
	case record.MediaURL == nil:
		return uploadPromptDocument, nil
	case record.ReportType == nil:
		return uploadPromptType, nil
	}

	return h.commit(user, record)
}

// commit writes the report row, clears the scratch record, closes the
// intent, and kicks off field extraction in the background.
func (h *UploadHandler) commit(user *models.User, c models.UploadCache) (string, error) {
	report := models.Report{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Phone:      user.Phone,
		MediaURL:   *c.MediaURL,
		ReportType: *c.ReportType,
		UploadedAt: h.deps.now(),
	}
	if err := h.deps.Store.CreateReport(report); err != nil {
		metrics.CommitFailures.WithLabelValues(string(models.IntentUploadDocument)).Inc()
		slog.Error("UploadHandler report commit failed", "error", err, "userID", user.ID)
		return uploadReplyTryAgain, err
	}

	if err := h.deps.Cache.DeleteUploadCache(user.ID); err != nil {
		slog.Warn("UploadHandler cache cleanup failed", "error", err, "userID", user.ID)
	}
	if err := h.deps.Store.CompleteIntent(user.Phone, models.IntentUploadDocument); err != nil {
		slog.Warn("UploadHandler intent completion failed", "error", err, "phone", user.Phone)
	}

	if h.deps.Insight != nil {
		go func(userID, fileURL string) {
			if err := h.deps.Insight.NotifyExtraction(context.Background(), userID, fileURL); err != nil {
				slog.Warn("UploadHandler extraction notification failed", "error", err, "userID", userID)
			}
		}(user.ID, report.MediaURL)
	}

	metrics.IntentsCompleted.WithLabelValues(string(models.IntentUploadDocument)).Inc()
	slog.Info("UploadHandler report committed", "userID", user.ID, "reportID", report.ID,
		"reportType", report.ReportType)
	return uploadReplyStored, nil
}
