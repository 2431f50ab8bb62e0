// Package flow implements the conversational flows behind the WhatsApp
// webhook: booking a diagnostic test, uploading a report, retrieving a
// previously uploaded report, and relaying analysis questions.
//
// Each flow is a Handler that consumes one inbound message, folds any
// newly extracted fields into its scratch cache record, and replies with
// either the next prompt or a commit confirmation. The Router decides
// which handler sees the message.
package flow

import (
	"context"
	"time"

	"github.com/labflowhq/labflow/internal/models"
	"github.com/labflowhq/labflow/internal/store"
)

// Handler drives one multi-turn flow. Handle consumes a single inbound
// message and returns the reply to send back. The returned error is for
// logging and metrics only; the reply is always usable as-is.
type Handler interface {
	Kind() models.IntentKind
	Handle(ctx context.Context, msg models.InboundMessage) (string, error)
}

// Classifier labels a free-text message with the flow it starts.
type Classifier interface {
	ClassifyIntent(ctx context.Context, message string) (models.IntentKind, error)
}

// InsightClient is the report-analysis service surface used by flows.
type InsightClient interface {
	Suggest(ctx context.Context, userID, query string) (string, error)
	NotifyExtraction(ctx context.Context, userID, fileURL string) error
}

// MediaStorer re-homes a transient gateway attachment into durable object
// storage and returns its public URL.
type MediaStorer interface {
	Store(ctx context.Context, mediaURL, contentType string) (string, error)
}

// Dependencies groups the collaborators shared by all flow handlers.
// Now is overridable so tests can pin relative date resolution.
type Dependencies struct {
	Store   store.Store
	Cache   store.CacheStore
	Media   MediaStorer
	Insight InsightClient
	Now     func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Replies shared across flows.
const (
	replyUserNotFound = "⚠️ Error: User not found."
	replyServerError  = "⚠️ Something went wrong. Please try again."
)

// resolveUser maps a phone number to its registered user, distinguishing
// an unregistered phone from a storage failure.
func resolveUser(st store.Store, phone string) (*models.User, error) {
	user, err := st.GetUserByPhone(phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}
