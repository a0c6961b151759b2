package reading

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	readingService "github.com/zhouzirui/z-tarot/backend/internal/service/reading"
	"github.com/zhouzirui/z-tarot/backend/pkg/utils"
)

// Service 是处理器依赖的占卜流程
type Service interface {
	Start(ctx context.Context) (readingService.View, error)
	Resume(ctx context.Context, id string) (readingService.View, error)
	Begin(ctx context.Context, id string, mode readingService.DrawMode) (readingService.View, error)
	Shuffle(ctx context.Context, id string) (readingService.View, error)
	DrawVirtual(ctx context.Context, id, seed string) (readingService.View, error)
	SwitchToVirtual(ctx context.Context, id string) (readingService.View, error)
	Home(ctx context.Context, id string)
	Submit(ctx context.Context, id string, sub readingService.Submission) (readingService.Result, error)
}

// Handler 占卜会话的HTTP处理器
type Handler struct {
	svc Service
	log logrus.FieldLogger
}

// New 创建占卜处理器
func New(svc Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes 注册占卜相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/readings", h.handleStart)
	r.Route("/readings/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleResume)
		r.Post("/begin", h.handleBegin)
		r.Post("/shuffle", h.handleShuffle)
		r.Post("/draw", h.handleDraw)
		r.Post("/draw-mode/virtual", h.handleSwitchToVirtual)
		r.Post("/submit", h.handleSubmit)
		r.Delete("/active", h.handleHome)
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Start(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.svc.Resume(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DrawMode readingService.DrawMode `json:"drawMode"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(w)(h.svc.Begin(r.Context(), chi.URLParam(r, "sessionID"), payload.DrawMode))
}

func (h *Handler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.svc.Shuffle(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleDraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Seed string `json:"seed"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(w)(h.svc.DrawVirtual(r.Context(), chi.URLParam(r, "sessionID"), payload.Seed))
}

func (h *Handler) handleSwitchToVirtual(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)(h.svc.SwitchToVirtual(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub readingService.Submission
	if err := utils.DecodeJSON(r, &sub); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Submit(r.Context(), chi.URLParam(r, "sessionID"), sub)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, ResultStatus(res.Kind), res.View)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.svc.Home(r.Context(), chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondView(w http.ResponseWriter) func(readingService.View, error) {
	return func(view readingService.View, err error) {
		if err != nil {
			h.respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	status := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("reading request failed")
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, err.Error())
}

// ErrorStatus 把服务层错误映射为HTTP状态码
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, readingService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, readingService.ErrNotAwaitingInput),
		errors.Is(err, readingService.ErrAlreadyStarted),
		errors.Is(err, readingService.ErrDrawComplete):
		return http.StatusConflict
	case errors.Is(err, readingService.ErrInvalidDrawMode):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// 客户端已断开
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// ResultStatus 把提交结果映射为HTTP状态码
func ResultStatus(kind readingService.ResultKind) int {
	switch kind {
	case readingService.ResultCommitted:
		return http.StatusOK
	case readingService.ResultValidationFailed:
		return http.StatusUnprocessableEntity
	case readingService.ResultFlagged:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
