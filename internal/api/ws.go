package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Single-owner service on a private host; the browser front end is
	// served from a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamBotLogs upgrades to a WebSocket, replays the bot's retained log
// lines, then forwards new lines as they arrive. Multiple subscribers per
// bot are supported; a slow socket only loses its own lines.
// GET /api/v1/bots/:id/logs/stream
func (h *Handler) StreamBotLogs(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.WithBotID(rec.ID)
	log.Debug("log stream subscriber connected")

	// The snapshot and the subscription are taken under one aggregator
	// lock, so every line lands in exactly one of the two.
	backfill, ch, unsubscribe := h.logs.SnapshotAndSubscribe(rec.ID)
	defer unsubscribe()

	for _, line := range backfill {
		if err := writeLine(conn, line); err != nil {
			return
		}
	}

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				// Bot deleted; close the stream.
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bot deleted"), deadline)
				return
			}
			if err := writeLine(conn, line); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-closed:
			log.Debug("log stream subscriber disconnected")
			return
		}
	}
}

func writeLine(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}
