package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const connectTimeout = 15 * time.Second

// inboundKinds are the socket.io events forwarded to Messages.
var inboundKinds = []string{KindUpdate, KindRecover, KindGraph, KindNotice, KindWarning}

// SocketIO is a Channel over socket.io. Each message kind is its own event
// and the first event argument is the payload.
type SocketIO struct {
	io     *socket.Socket
	in     *inbox
	logger *slog.Logger

	closeOnce sync.Once
}

// DialSocketIO connects to cfg.URL, waiting for the connect event.
func DialSocketIO(ctx context.Context, cfg Config) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("transport", SocketIOTransport, "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if cfg.Cookie != "" {
		opts.SetExtraHeaders(http.Header{
			"Cookie": {(&http.Cookie{Name: AuthCookieName, Value: cfg.Cookie}).String()},
		})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	s := &SocketIO{
		io:     io,
		in:     newInbox(inboxSize),
		logger: logger,
	}
	for _, kind := range inboundKinds {
		s.forward(kind)
	}

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		reportConnect(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		reportConnect(connectChan, err)
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Info("Server disconnected", "reason", fmt.Sprint(reason...))
		go s.Close()
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return s, nil
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		s.Close()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// reportConnect keeps the first connection outcome and drops later ones, so
// the event loop never blocks on an abandoned dial.
func reportConnect(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (s *SocketIO) forward(kind string) {
	s.io.On(types.EventName(kind), func(args ...any) {
		m := Message{Kind: kind}
		if len(args) > 0 && args[0] != nil {
			payload, err := json.Marshal(args[0])
			if err != nil {
				s.logger.Warn("Dropping undecodable event payload.", "event", kind, "error", err)
				return
			}
			m.Payload = payload
		}
		s.in.deliver(context.Background(), m)
	})
}

// Messages implements Channel.
func (s *SocketIO) Messages() <-chan Message {
	return s.in.ch
}

// Send implements Channel. The message kind becomes the event name.
func (s *SocketIO) Send(ctx context.Context, m Message) error {
	if s.in.isClosed() || !s.io.Connected() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.HasPayload() {
		s.io.Emit(m.Kind)
		return nil
	}

	var data any
	if err := json.Unmarshal(m.Payload, &data); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Kind, err)
	}
	s.io.Emit(m.Kind, data)
	return nil
}

// Close implements Channel.
func (s *SocketIO) Close() error {
	s.closeOnce.Do(func() {
		s.in.close()
		s.io.Disconnect()
		s.logger.Info("Connection closed", "sid", s.io.Id())
	})
	return nil
}
