package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jymapp/jym/internal/models"
)

// Webhooks acknowledge with 200 as long as the payload parses; routing
// problems are Jym's to deal with asynchronously. Only a body the gateway
// itself got wrong earns a 400.

func (s *Server) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update models.TelegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("API: malformed telegram update", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid update payload"))
		return
	}
	if update.Message == nil || update.Message.Text == "" {
		writeJSONResponse(w, http.StatusOK, models.Ignored("no text message in update"))
		return
	}
	s.opts.Telegram.EnqueueUpdate(update)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("API: malformed twilio webhook", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid form payload"))
		return
	}

	// Status callbacks share the webhook URL with inbound messages.
	if status := r.PostFormValue("MessageStatus"); status != "" {
		slog.Debug("API: twilio delivery receipt", "status", status, "messageSID", r.PostFormValue("MessageSid"))
		writeJSONResponse(w, http.StatusOK, models.Ignored("status callback"))
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		writeJSONResponse(w, http.StatusOK, models.Ignored("no inbound message"))
		return
	}
	s.opts.WhatsApp.EnqueueInbound(from, body, r.PostFormValue("MessageSid"))
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) imessageWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var hook models.LoopMessageWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		slog.Warn("API: malformed loopmessage webhook", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid webhook payload"))
		return
	}
	if hook.AlertType != models.LoopAlertMessageInbound {
		writeJSONResponse(w, http.StatusOK, models.Ignored(hook.AlertType))
		return
	}
	s.opts.IMessage.EnqueueWebhook(hook)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

type createTriggerRequest struct {
	OwnerID     string                  `json:"owner_id"`
	Recipient   string                  `json:"recipient"`
	Channel     models.Channel          `json:"channel"`
	Instruction string                  `json:"instruction"`
	ScheduledAt time.Time               `json:"scheduled_at"`
	ThreadID    string                  `json:"thread_id,omitempty"`
	Metadata    *models.TriggerMetadata `json:"metadata,omitempty"`
}

func (s *Server) createTriggerHandler(w http.ResponseWriter, r *http.Request) {
	var req createTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid trigger payload"))
		return
	}

	created, err := s.opts.Triggers.Create(r.Context(), models.Trigger{
		OwnerID:     req.OwnerID,
		Recipient:   req.Recipient,
		Channel:     req.Channel,
		Instruction: req.Instruction,
		ScheduledAt: req.ScheduledAt,
		ThreadID:    req.ThreadID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		slog.Warn("API: trigger creation rejected", "error", err, "ownerID", req.OwnerID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Scheduled(created))
}

func (s *Server) listTriggersHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("owner query parameter is required"))
		return
	}
	triggers, err := s.opts.Triggers.ListByOwner(r.Context(), ownerID)
	if err != nil {
		slog.Error("API: trigger list failed", "error", err, "ownerID", ownerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list triggers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(triggers))
}

func (s *Server) cancelTriggerHandler(w http.ResponseWriter, r *http.Request) {
	triggerID := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("owner query parameter is required"))
		return
	}

	err := s.opts.Triggers.Cancel(r.Context(), ownerID, triggerID)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
	case errors.Is(err, models.ErrTriggerNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("trigger not found"))
	case errors.Is(err, models.ErrTriggerForbidden):
		writeJSONResponse(w, http.StatusForbidden, models.Error("trigger belongs to another owner"))
	case errors.Is(err, models.ErrTriggerNotPending):
		writeJSONResponse(w, http.StatusConflict, models.Error("trigger is not pending"))
	default:
		slog.Error("API: trigger cancel failed", "error", err, "triggerID", triggerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to cancel trigger"))
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
