package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labflowhq/labflow/internal/models"
)

// sendRequest is the payload for the outbound message endpoint.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendHandler pushes a WhatsApp message outside the webhook reply path,
// e.g. appointment reminders fired by platform staff or automation.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: body"))
		return
	}

	to, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.msgService.SendMessage(context.Background(), to, req.Body); err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", to)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent", "to", to)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

// appointmentsHandler lists committed appointments for one patient.
func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("patientID")
	if patientID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing patient ID"))
		return
	}

	appointments, err := s.store.ListAppointmentsByPatient(patientID)
	if err != nil {
		slog.Error("Server.appointmentsHandler: list failed", "error", err, "patientID", patientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	if appointments == nil {
		appointments = []models.Appointment{}
	}

	slog.Debug("Server.appointmentsHandler: listed appointments", "patientID", patientID, "count", len(appointments))
	writeJSONResponse(w, http.StatusOK, models.Success(appointments))
}

// reportsHandler lists committed reports for one user.
func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing user ID"))
		return
	}

	reports, err := s.store.ListReportsByUser(userID)
	if err != nil {
		slog.Error("Server.reportsHandler: list failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list reports"))
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}

	slog.Debug("Server.reportsHandler: listed reports", "userID", userID, "count", len(reports))
	writeJSONResponse(w, http.StatusOK, models.Success(reports))
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
