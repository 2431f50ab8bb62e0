package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/labflowhq/labflow/internal/models"
)

const analyzeReplyUnavailable = "⚠️ Unable to analyze that right now. Please try again later."

// AnalyzeHandler relays report questions to the insight service. It is the
// only flow with no scratch state and no intent row: every message is a
// complete request answered in one turn.
type AnalyzeHandler struct {
	deps Dependencies
}

// NewAnalyzeHandler creates the analysis relay handler.
func NewAnalyzeHandler(deps Dependencies) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps}
}

// Kind returns the intent kind this handler serves.
func (h *AnalyzeHandler) Kind() models.IntentKind { return models.IntentAnalyzeReport }

// Handle forwards the question and relays the suggestion text verbatim.
func (h *AnalyzeHandler) Handle(ctx context.Context, msg models.InboundMessage) (string, error) {
	user, err := resolveUser(h.deps.Store, msg.From)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return replyUserNotFound, nil
		}
		slog.Error("AnalyzeHandler user lookup failed", "error", err, "phone", msg.From)
		return analyzeReplyUnavailable, err
	}

	if h.deps.Insight == nil {
		slog.Warn("AnalyzeHandler insight service not configured", "userID", user.ID)
		return analyzeReplyUnavailable, nil
	}

	suggestions, err := h.deps.Insight.Suggest(ctx, user.ID, msg.Body)
	if err != nil {
		slog.Error("AnalyzeHandler suggestion request failed", "error", err, "userID", user.ID)
		return analyzeReplyUnavailable, err
	}

	slog.Debug("AnalyzeHandler suggestion relayed", "userID", user.ID)
	return suggestions, nil
}
