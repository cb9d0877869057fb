package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"hkms/internal/access"
	"hkms/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const (
	closeUnauthorized = 4001
	closeSlowConsumer = 4008

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Realtime attaches SockJS and plain WebSocket subscribers to the hub. Every
// subscriber receives every event; clients filter locally.
type Realtime struct {
	hub         *hub.Hub
	gate        *access.Gate
	requireAuth bool
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewRealtime(h *hub.Hub, gate *access.Gate, requireAuth bool, logger *zap.Logger) *Realtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Realtime{
		hub:         h,
		gate:        gate,
		requireAuth: requireAuth,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// authenticate reports whether the connecting request may subscribe. Browsers
// cannot set headers on socket handshakes, so a token query parameter is
// accepted as well.
func (rt *Realtime) authenticate(r *http.Request) bool {
	if !rt.requireAuth {
		return true
	}
	token := sessionIDFromRequest(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	_, err := rt.gate.Resolve(r.Context(), token)
	return err == nil
}

func (rt *Realtime) SockJSHandler(prefix string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		if !rt.authenticate(session.Request()) {
			_ = session.Close(closeUnauthorized, "unauthorized")
			return
		}

		client := rt.hub.Register()
		defer rt.hub.Unregister(client)

		go func() {
			for msg := range client.Messages() {
				if err := session.Send(string(msg)); err != nil {
					rt.hub.Unregister(client)
					return
				}
			}
			if client.Overflowed() {
				_ = session.Close(closeSlowConsumer, "subscriber queue overflow")
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	})
}

func (rt *Realtime) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !rt.authenticate(r) {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := rt.hub.Register()
	ctx, cancel := context.WithCancel(context.Background())
	go rt.writePump(ctx, conn, client)

	defer func() {
		cancel()
		rt.hub.Unregister(client)
	}()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// closeFrame picks the close code for a client the hub has let go of.
func closeFrame(client *hub.Client) []byte {
	if client.Overflowed() {
		return websocket.FormatCloseMessage(closeSlowConsumer, "subscriber queue overflow")
	}
	return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
}

// writePump is the only writer on conn. It exits when the client is
// unregistered, the reader goes away, or a write fails.
func (rt *Realtime) writePump(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, closeFrame(client))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				rt.hub.Unregister(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				rt.hub.Unregister(client)
				return
			}
		}
	}
}
