package localapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/pkg/api"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin разрешает подключения без Origin (CLI, нативные клиенты) и
// из страниц, открытых с loopback адреса
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Events обрабатывает GET /v1/events: websocket поток событий движка.
// Первым сообщением всегда идёт текущий статус.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.WarnContext(r.Context(), "Websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.engine.SubscribeEvents()
	defer unsubscribe()

	closed := make(chan struct{})
	go readPump(conn, closed)

	status, err := h.engine.GetStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to compute sync status", slog.Any("error", err))
		return
	}
	if err := writeEvent(conn, chsync.Event{Type: api.EventStatus, Data: status, Timestamp: time.Now()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.DebugContext(r.Context(), "Websocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev chsync.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(api.Event{
		Type:      ev.Type,
		Data:      data,
		Timestamp: ev.Timestamp,
	})
}
