package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	readingHandler "github.com/zhouzirui/z-tarot/backend/internal/handler/reading"
	readingService "github.com/zhouzirui/z-tarot/backend/internal/service/reading"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Service 是 WebSocket 通道驱动的占卜流程
type Service interface {
	Resume(ctx context.Context, id string) (readingService.View, error)
	Shuffle(ctx context.Context, id string) (readingService.View, error)
	DrawVirtual(ctx context.Context, id, seed string) (readingService.View, error)
	SubmitObserved(ctx context.Context, id string, sub readingService.Submission, observe func(readingService.Phase)) (readingService.Result, error)
}

// Handler WebSocket占卜通道
type Handler struct {
	svc      Service
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	// readTimeout 是两次客户端消息或 pong 之间允许的最长间隔
	readTimeout time.Duration
}

// New 创建WebSocket处理器
func New(svc Service, log logrus.FieldLogger) *Handler {
	return &Handler{
		svc:         svc,
		log:         log,
		readTimeout: readTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type drawMessage struct {
	Seed string `json:"seed"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ResultData 是一次提交在通道上的结果
type ResultData struct {
	Kind    readingService.ResultKind `json:"kind"`
	Message string                    `json:"message,omitempty"`
	View    readingService.View       `json:"view"`
}

type errorData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type connection struct {
	conn      *websocket.Conn
	sessionID string
	log       logrus.FieldLogger
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.svc.Resume(r.Context(), sessionID)
	if err != nil {
		status := readingHandler.ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.WithError(err).Error("websocket session lookup failed")
			http.Error(w, "internal error", status)
			return
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{conn: conn, sessionID: sessionID, log: h.log.WithField("session", sessionID)}
	c.log.Debug("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go c.pingLoop(ctx)

	c.send("connected", view)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		h.handleMessage(ctx, c, msg)
		// 模型回退可能比 readTimeout 更久，处理完后重新计时
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, msg inboundMessage) {
	switch msg.Type {
	case "view":
		c.respondView(h.svc.Resume(ctx, c.sessionID))
	case "shuffle":
		c.respondView(h.svc.Shuffle(ctx, c.sessionID))
	case "draw":
		var draw drawMessage
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &draw); err != nil {
				c.sendError(http.StatusBadRequest, "invalid draw payload")
				return
			}
		}
		c.respondView(h.svc.DrawVirtual(ctx, c.sessionID, draw.Seed))
	case "submit":
		var sub readingService.Submission
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			c.sendError(http.StatusBadRequest, "invalid submit payload")
			return
		}
		res, err := h.svc.SubmitObserved(ctx, c.sessionID, sub, func(p readingService.Phase) {
			c.send("status", map[string]any{"phase": p})
		})
		if err != nil {
			c.fail(err)
			return
		}
		c.send("result", ResultData{Kind: res.Kind, Message: res.Message, View: res.View})
	default:
		c.sendError(http.StatusBadRequest, "unsupported message type: "+msg.Type)
	}
}

func (c *connection) respondView(view readingService.View, err error) {
	if err != nil {
		c.fail(err)
		return
	}
	c.send("view", view)
}

func (c *connection) fail(err error) {
	status := readingHandler.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		c.log.WithError(err).Error("websocket request failed")
		c.sendError(status, "internal error")
		return
	}
	c.sendError(status, err.Error())
}

func (c *connection) send(kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.WithError(err).Debug("websocket write failed")
	}
}

func (c *connection) sendError(status int, message string) {
	c.send("error", errorData{Status: status, Message: message})
}

// pingLoop 定期发送ping消息。WriteControl 可与 WriteJSON 并发调用。
func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
