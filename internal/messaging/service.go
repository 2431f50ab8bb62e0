// Package messaging provides the outbound message delivery contract for LabFlow.
package messaging

import (
	"context"
	"errors"
	"regexp"
)

// ErrServiceStopped is returned when a send is attempted after shutdown.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service is the outbound messaging gateway used by flows that must push a
// message outside the synchronous webhook reply path.
type Service interface {
	// SendMessage delivers a text message to the given phone number.
	SendMessage(ctx context.Context, to string, body string) error

	// ValidateAndCanonicalizeRecipient validates a phone number and returns
	// its canonical digits-only form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// Stop shuts the service down; subsequent sends fail with ErrServiceStopped.
	Stop() error
}

// MockService records sent messages for tests.
type MockService struct {
	Sent    []SentMessage
	SendErr error
}

// SentMessage is one recorded outbound message.
type SentMessage struct {
	To   string
	Body string
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

func (m *MockService) Stop() error { return nil }
