package gateway

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleExecutions streams execution events as JSON text messages until the
// client disconnects or the gateway stops. Client messages are ignored.
func (g *Gateway) handleExecutions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.events == nil {
			writeError(w, http.StatusServiceUnavailable, "execution stream not available")
			return
		}

		// The stream outlives the server write timeout.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.CloseNow()
		}()

		events, cancel := g.events.Subscribe(g.config.StreamBuffer)
		defer cancel()

		ctx := conn.CloseRead(r.Context())
		g.logger.Debug("gateway: stream client connected", "remote", r.RemoteAddr)

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.closing.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusGoingAway, "stream closed")
					return
				}
				if err := wsjson.Write(ctx, conn, ev); err != nil {
					g.logger.Debug("gateway: stream write failed", "error", err)
					return
				}
			}
		}
	}
}
