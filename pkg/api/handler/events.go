package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/sirupsen/logrus"
)

// EventsHandler 工作流事件WebSocket推送处理器
type EventsHandler struct {
	bus      *events.Bus
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewEventsHandler 创建EventsHandler
func NewEventsHandler(bus *events.Bus, log *logrus.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 将事件总线上的工作流事件推送给WebSocket客户端
// GET /api/v1/events
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "message": "event bus is not configured"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket升级失败")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	ch, err := h.bus.Subscribe(ctx)
	if err != nil {
		h.log.WithError(err).Warn("订阅工作流事件失败")
		return
	}

	// 读协程只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.log.WithError(err).Debug("推送工作流事件失败，关闭连接")
				return
			}
		}
	}
}
