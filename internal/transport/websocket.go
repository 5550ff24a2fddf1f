package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vk/wormhole/internal/ctxlog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. Recover payloads carry the whole map.
	maxMessageSize = 4 << 20

	handshakeTimeout = 15 * time.Second
	inboxSize        = 64
)

// WebSocket is a Channel over a plain websocket connection.
type WebSocket struct {
	conn   *websocket.Conn
	in     *inbox
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket connects to cfg.URL and starts the read and ping pumps.
func DialWebSocket(ctx context.Context, cfg Config) (*WebSocket, error) {
	logger := ctxlog.FromContext(ctx).With("transport", WebSocketTransport, "url", cfg.URL)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if cfg.Cookie != "" {
		header.Set("Cookie", (&http.Cookie{Name: AuthCookieName, Value: cfg.Cookie}).String())
	}

	logger.Debug("Initiating connection...")
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	logger.Info("Successfully connected")

	ws := &WebSocket{
		conn:   conn,
		in:     newInbox(inboxSize),
		logger: logger,
	}
	go ws.readPump()
	go ws.pingPump()
	return ws, nil
}

// Messages implements Channel.
func (w *WebSocket) Messages() <-chan Message {
	return w.in.ch
}

// Send implements Channel. Writes are serialized; the write deadline is the
// earlier of ctx's deadline and writeWait.
func (w *WebSocket) Send(ctx context.Context, m Message) error {
	if w.in.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", m.Kind, err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if w.in.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("failed to write %s message: %w", m.Kind, err)
	}
	return nil
}

// Close implements Channel.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.in.close()
		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		w.writeMu.Unlock()
		err = w.conn.Close()
		w.logger.Info("Connection closed")
	})
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// readPump decodes frames into the inbox until the connection fails.
func (w *WebSocket) readPump() {
	defer w.Close()

	w.conn.SetReadLimit(maxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !w.in.isClosed() {
				w.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			w.logger.Warn("Binary messages not supported")
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			w.logger.Warn("Dropping malformed message.", "error", err)
			continue
		}
		if !w.in.deliver(context.Background(), m) {
			return
		}
	}
}

func (w *WebSocket) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.in.done:
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				w.logger.Debug("Failed to send ping", "error", err)
				return
			}
		}
	}
}
