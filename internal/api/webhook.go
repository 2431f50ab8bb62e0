package api

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

// twimlResponse is the minimal TwiML document for a synchronous reply.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// webhookHandler receives one inbound WhatsApp message from the Twilio
// gateway as form data and answers with TwiML carrying the flow reply.
// Internal failures still produce a 200 with an apologetic reply: a webhook
// error status would only make the gateway retry a message we already
// half-processed.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: malformed form payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
	if canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(from); err == nil {
		from = canonical
	} else {
		slog.Warn("Server.webhookHandler: sender not canonicalizable", "error", err, "from", from)
	}

	msg := models.InboundMessage{
		From:             from,
		Body:             r.PostFormValue("Body"),
		MediaURL:         r.PostFormValue("MediaUrl0"),
		MediaContentType: r.PostFormValue("MediaContentType0"),
		Time:             time.Now().Unix(),
	}
	slog.Debug("Server.webhookHandler: message received", "from", msg.From, "hasMedia", msg.HasMedia())

	reply, err := s.router.Dispatch(r.Context(), msg)
	if err != nil {
		// The router always returns a usable reply alongside its error.
		slog.Error("Server.webhookHandler: dispatch reported error", "error", err, "from", msg.From)
	}

	out, err := xml.Marshal(twimlResponse{Message: reply})
	if err != nil {
		slog.Error("Server.webhookHandler: failed to marshal TwiML", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append([]byte(xml.Header), out...)); err != nil {
		slog.Error("Server.webhookHandler: failed to write TwiML response", "error", err)
	}
}
