package live

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Frame is one result pushed to a websocket client.
type Frame struct {
	Query   string `json:"query"`
	Version int64  `json:"version"`
	Data    any    `json:"data"`
}

// Handler streams built-in queries over websockets:
//
//	GET /live/{name}?store=ID
//
// Each frame carries the query's newest result.
type Handler struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler over hub. Presentation clients run
// on the same device, so every origin is accepted.
func NewHandler(hub *Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/live/"), "/")
	q, ok := Lookup(name, r.URL.Query().Get("store"))
	if !ok {
		http.Error(w, "unknown live query "+name, http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("query", name), zap.Error(err))
		return
	}
	defer conn.Close()

	sub, err := Watch(r.Context(), h.hub, q)
	if err != nil {
		h.log.Error("live query failed", zap.String("query", name), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "query failed"),
			time.Now().Add(writeTimeout))
		return
	}
	defer sub.Close()

	// Clients only listen; reading detects when they go away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	h.log.Debug("live client connected", zap.String("query", name))
	for data := range sub.Updates() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(Frame{Query: name, Version: sub.Version(), Data: data}); err != nil {
			h.log.Debug("live client write failed", zap.String("query", name), zap.Error(err))
			return
		}
	}
}
