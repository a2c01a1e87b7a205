package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foxzi/techsupport/internal/metrics"
	"github.com/foxzi/techsupport/internal/web/provider"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	// liveBuffer is how many events a slow client may lag behind before
	// events are dropped
	liveBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Live handles GET /api/live. It pushes one event per collection snapshot
// and status change so open dashboards can refresh.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	metrics.AddLiveClients(1)
	defer metrics.AddLiveClients(-1)

	events := make(chan provider.Event, liveBuffer)
	cancel := h.data.Watch(func(ev provider.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	if err := h.writeLive(ws, provider.Event{Status: h.data.Status()}); err != nil {
		return
	}

	for {
		select {
		case ev := <-events:
			if err := h.writeLive(ws, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) writeLive(ws *websocket.Conn, ev provider.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := ws.WriteJSON(ev); err != nil {
		h.logger.Debug("live client gone", "error", err)
		return err
	}
	return nil
}
