// Package api provides HTTP handlers for VetBot endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Alex3496/VetBot/internal/flow"
	"github.com/Alex3496/VetBot/internal/messaging"
	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/util"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"transport": s.msgService.Name(),
	}))
}

// sendHandler sends a proactive text or template message.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.sendHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if req.Template != "" {
		ts, ok := s.msgService.(messaging.TemplateSender)
		if !ok {
			writeJSONResponse(w, http.StatusNotImplemented, models.Error(messaging.ErrTemplatesUnsupported.Error()))
			return
		}
		err = ts.SendTemplate(r.Context(), canonicalTo, req.Template, req.Language)
	} else {
		err = s.msgService.SendText(r.Context(), canonicalTo, req.Body, "")
	}
	if err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent successfully", "to", canonicalTo, "template", req.Template)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

// listLimit parses the limit query parameter.
func listLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	records, err := s.appointments.ListAppointments(r.Context(), limit)
	if err != nil {
		slog.Error("Server.appointmentsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	if records == nil {
		records = []models.AppointmentRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.dispatcher.States().List(r.Context())
	if err != nil {
		slog.Error("Server.sessionsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	if s.metrics != nil {
		s.metrics.SetActiveSessions(len(sessions))
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// deleteSessionHandler abandons the active flow of one sender.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sender := util.NormalizeSenderID(chi.URLParam(r, "id"))
	states := s.dispatcher.States()

	unlock := states.Lock(sender)
	defer unlock()

	session, err := states.Get(r.Context(), sender)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read session"))
		return
	}
	if !session.Active() {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active session"))
		return
	}
	if err := states.Reset(r.Context(), sender); err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	if s.metrics != nil {
		s.metrics.FlowEvent(session.Flow, flow.FlowAborted)
	}
	slog.Info("Server.deleteSessionHandler: session reset", "sender", sender, "flow", session.Flow, "step", session.Step)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
}

func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	cloud, ok := s.msgService.(*messaging.CloudService)
	if !ok {
		writeJSONResponse(w, http.StatusNotImplemented, models.Error(messaging.ErrTemplatesUnsupported.Error()))
		return
	}
	templates, err := cloud.ListTemplates(r.Context())
	if err != nil {
		if errors.Is(err, messaging.ErrBusinessIDNotSet) {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error(err.Error()))
			return
		}
		slog.Error("Server.templatesHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to list templates"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(templates))
}
