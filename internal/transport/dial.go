package transport

import (
	"context"
	"fmt"
)

// Supported adapters.
const (
	WebSocketTransport = "websocket"
	SocketIOTransport  = "socketio"
)

// AuthCookieName is the cookie the map server reads the session from.
const AuthCookieName = "auth_cookie"

// Config selects and configures an adapter.
type Config struct {
	URL                string
	Transport          string
	Namespace          string
	InsecureSkipVerify bool
	// Cookie, when set, is sent as the auth cookie on the handshake.
	Cookie string
}

// Dial opens a channel using the adapter named by cfg.Transport. An empty
// transport means websocket.
func Dial(ctx context.Context, cfg Config) (Channel, error) {
	var (
		ch  Channel
		err error
	)
	switch cfg.Transport {
	case "", WebSocketTransport:
		ch, err = DialWebSocket(ctx, cfg)
	case SocketIOTransport:
		ch, err = DialSocketIO(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		// ch holds a typed nil here.
		return nil, err
	}
	return ch, nil
}
