package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	readingHandler "github.com/zhouzirui/z-tarot/backend/internal/handler/reading"
	readingService "github.com/zhouzirui/z-tarot/backend/internal/service/reading"
	"github.com/zhouzirui/z-tarot/backend/pkg/utils"
)

// Submitter runs a turn and reports its transient phases.
type Submitter interface {
	SubmitObserved(ctx context.Context, id string, sub readingService.Submission, observe func(readingService.Phase)) (readingService.Result, error)
}

// Handler streams the progress of a submission via Server-Sent Events
type Handler struct {
	svc Submitter
	log logrus.FieldLogger
}

// New creates a new stream handler
func New(svc Submitter, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Event payloads.
type (
	StartEvent struct {
		SessionID string `json:"sessionId"`
	}
	StatusEvent struct {
		SessionID string               `json:"sessionId"`
		Phase     readingService.Phase `json:"phase"`
	}
	ViewEvent struct {
		Kind    readingService.ResultKind `json:"kind"`
		Status  int                       `json:"status"`
		Message string                    `json:"message,omitempty"`
		View    readingService.View       `json:"view"`
	}
	EndEvent struct {
		SessionID string `json:"sessionId"`
		Finished  bool   `json:"finished"`
	}
	ErrorEvent struct {
		Status int    `json:"status"`
		Error  string `json:"error"`
	}
)

// RegisterRoutes registers the streaming submit endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stream/{sessionID}", h.handleSubmit)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	log := h.log.WithField("session", sessionID)

	var sub readingService.Submission
	if err := utils.DecodeJSON(r, &sub); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	send := func(event string, data any) {
		if err := sse.Event(event, data); err != nil {
			log.WithError(err).Debug("sse write failed")
		}
	}

	send("start", StartEvent{SessionID: sessionID})
	res, err := h.svc.SubmitObserved(r.Context(), sessionID, sub, func(p readingService.Phase) {
		send("status", StatusEvent{SessionID: sessionID, Phase: p})
	})
	if err != nil {
		status := readingHandler.ErrorStatus(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			log.WithError(err).Error("streamed submission failed")
			msg = "internal error"
		}
		send("error", ErrorEvent{Status: status, Error: msg})
		return
	}

	send("view", ViewEvent{
		Kind:    res.Kind,
		Status:  readingHandler.ResultStatus(res.Kind),
		Message: res.Message,
		View:    res.View,
	})
	send("end", EndEvent{SessionID: sessionID, Finished: true})
	log.WithField("kind", res.Kind).Debug("stream completed")
}
