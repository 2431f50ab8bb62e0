package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/labflowhq/labflow/internal/metrics"
	"github.com/labflowhq/labflow/internal/models"
	"github.com/labflowhq/labflow/internal/util"
)

const replyUnclassified = "🤖 I can help you book a test, upload a document, retrieve a document, or analyze a report. What would you like to do?"

// cancellationPhrases map exact stop phrases to the flow they cancel.
// Matched case-insensitively against the whole trimmed message, before any
// other routing, so cancellation works from any flow state.
var cancellationPhrases = map[string]models.IntentKind{
	"STOP BOOKING":   models.IntentBookTest,
	"STOP UPLOAD":    models.IntentUploadDocument,
	"STOP RETRIEVAL": models.IntentRetrieveDocument,
}

var canceledReplies = map[models.IntentKind]string{
	models.IntentBookTest:         "✅ Booking operation canceled.",
	models.IntentUploadDocument:   "✅ Upload operation canceled.",
	models.IntentRetrieveDocument: "✅ Retrieval operation canceled.",
}

// intentKeywords drive the first-pass heuristic, checked in order so that
// "upload my blood test report" lands on upload rather than booking.
var intentKeywords = []struct {
	kind  models.IntentKind
	words []string
}{
	{models.IntentUploadDocument, []string{"upload", "attach", "submit"}},
	{models.IntentRetrieveDocument, []string{"retrieve", "fetch", "download", "get my", "find my"}},
	{models.IntentAnalyzeReport, []string{"analyze", "analyse", "explain", "interpret", "what does"}},
	{models.IntentBookTest, []string{"book", "appointment", "schedule", "test"}},
}

// Router owns message dispatch: cancellation phrases first, then
// continuation of the open intent, then classification of a fresh message.
type Router struct {
	deps       Dependencies
	classifier Classifier
	handlers   map[models.IntentKind]Handler
}

// NewRouter creates a router over the given handlers. classifier may be nil,
// in which case only the keyword heuristic classifies fresh messages.
func NewRouter(deps Dependencies, classifier Classifier, handlers ...Handler) *Router {
	m := make(map[models.IntentKind]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Kind()] = h
	}
	return &Router{deps: deps, classifier: classifier, handlers: m}
}

// Dispatch routes one inbound message and returns the reply text. The reply
// is always usable; the error reports what went wrong internally.
func (r *Router) Dispatch(ctx context.Context, msg models.InboundMessage) (string, error) {
	metrics.MessagesReceived.Inc()

	if msg.From == "" {
		return replyServerError, models.ErrEmptyPhone
	}

	if kind, ok := cancellationPhrases[strings.ToUpper(strings.TrimSpace(msg.Body))]; ok {
		return r.cancel(msg.From, kind), nil
	}

	intent, err := r.deps.Store.GetLatestIncompleteIntent(msg.From)
	if err != nil {
		slog.Error("Router intent lookup failed", "error", err, "phone", msg.From)
		return replyServerError, err
	}
	if intent != nil {
		h, ok := r.handlers[intent.Kind]
		if !ok {
			slog.Error("Router open intent has no handler", "kind", intent.Kind, "phone", msg.From)
			return replyServerError, fmt.Errorf("no handler for intent kind %q", intent.Kind)
		}
		slog.Debug("Router continuing open intent", "phone", msg.From, "kind", intent.Kind)
		return h.Handle(ctx, msg)
	}

	kind, err := r.classify(ctx, msg.Body)
	if err != nil {
		slog.Info("Router message unclassified", "phone", msg.From)
		return replyUnclassified, nil
	}
	h, ok := r.handlers[kind]
	if !ok {
		slog.Warn("Router classified kind has no handler", "kind", kind, "phone", msg.From)
		return replyUnclassified, nil
	}

	// Analysis is single-shot and never opens an intent; the other flows
	// record one so follow-up messages resume where the user left off.
	if kind != models.IntentAnalyzeReport {
		user, err := resolveUser(r.deps.Store, msg.From)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return replyUserNotFound, nil
			}
			slog.Error("Router user lookup failed", "error", err, "phone", msg.From)
			return replyServerError, err
		}
		if err := r.deps.Store.CreateIntent(models.Intent{
			ID:        util.GenerateIntentID(),
			Phone:     msg.From,
			UserID:    user.ID,
			Kind:      kind,
			UpdatedAt: r.deps.now(),
		}); err != nil {
			slog.Error("Router intent creation failed", "error", err, "phone", msg.From, "kind", kind)
			return replyServerError, err
		}
		metrics.IntentsOpened.WithLabelValues(string(kind)).Inc()
		slog.Info("Router intent opened", "phone", msg.From, "kind", kind)
	}

	return h.Handle(ctx, msg)
}

// classify labels a fresh message, trying the keyword heuristic before the
// model-backed classifier.
func (r *Router) classify(ctx context.Context, body string) (models.IntentKind, error) {
	lower := strings.ToLower(body)
	for _, entry := range intentKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.kind, nil
			}
		}
	}
	if r.classifier != nil {
		return r.classifier.ClassifyIntent(ctx, body)
	}
	return "", models.ErrUnknownIntent
}

// cancel drops the flow's scratch record and completes its intent.
// Unconditional and idempotent: it reports success even when nothing was
// open, and a cache or store failure only costs a log line.
func (r *Router) cancel(phone string, kind models.IntentKind) string {
	user, err := r.deps.Store.GetUserByPhone(phone)
	if err != nil {
		slog.Error("Router cancel user lookup failed", "error", err, "phone", phone)
	}
	if user != nil {
		var cacheErr error
		switch kind {
		case models.IntentBookTest:
			cacheErr = r.deps.Cache.DeleteBookingCache(user.ID)
		case models.IntentUploadDocument:
			cacheErr = r.deps.Cache.DeleteUploadCache(user.ID)
		case models.IntentRetrieveDocument:
			cacheErr = r.deps.Cache.DeleteRetrievalCache(user.ID)
		}
		if cacheErr != nil {
			slog.Warn("Router cancel cache delete failed", "error", cacheErr, "userID", user.ID, "kind", kind)
		}
	}
	if err := r.deps.Store.CompleteIntent(phone, kind); err != nil {
		slog.Warn("Router cancel intent completion failed", "error", err, "phone", phone, "kind", kind)
	}

	metrics.IntentsCanceled.WithLabelValues(string(kind)).Inc()
	slog.Info("Router flow canceled", "phone", phone, "kind", kind)
	return canceledReplies[kind]
}
