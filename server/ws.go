package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay/protocol"
)

// wsConn adapts a WebSocket connection to the framed transport: one JSON
// frame per text message, no extra delimiting needed.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c *wsConn) WriteFrame(payload []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *wsConn) Close() error                       { return c.conn.Close() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }

// NewHTTPServer exposes the WebSocket transport on /ws and Prometheus
// metrics on /metrics. Upgraded connections run the same handler as TCP
// clients.
func NewHTTPServer(addr string, srv *Server, logger *slog.Logger) *http.Server {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}
		conn.SetReadLimit(protocol.MaxFrameSize)
		go srv.handleConn(&wsConn{conn: conn})
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
