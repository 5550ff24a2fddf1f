// Package transport carries messages between the tracker and the map server.
//
// On the wire every message is either a tagged pair
//
//	["update", {"node": "Jita"}]
//
// or a bare JSON string for payload-less commands such as "track". Channel
// abstracts the persistent connection; concrete adapters exist for a plain
// websocket endpoint and for socket.io, plus an in-memory Pipe for tests.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message kinds.
const (
	KindUpdate  = "update"
	KindRecover = "recover"
	KindGraph   = "graph"
	KindNotice  = "notice"
	KindWarning = "warning"
)

// Outbound message kinds. Track, stop and reset are sent without a payload.
const (
	KindBackup   = "backup"
	CommandTrack = "track"
	CommandStop  = "stop"
	CommandReset = "reset"
)

var (
	// ErrClosed is returned by Send once the channel has closed.
	ErrClosed = errors.New("transport closed")

	// ErrMalformedMessage is returned when a frame is neither a tagged pair
	// nor a bare string.
	ErrMalformedMessage = errors.New("malformed message")
)

// Message is one frame on the channel.
type Message struct {
	Kind    string
	Payload json.RawMessage
}

// NewMessage builds a message whose payload is the JSON encoding of v.
func NewMessage(kind string, v any) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Message{Kind: kind, Payload: payload}, nil
}

// Command builds a payload-less message.
func Command(kind string) Message {
	return Message{Kind: kind}
}

// HasPayload reports whether the message carries a non-null payload.
func (m Message) HasPayload() bool {
	p := bytes.TrimSpace(m.Payload)
	return len(p) > 0 && !bytes.Equal(p, []byte("null"))
}

// MarshalJSON encodes the message as a tagged pair, or as a bare string when
// there is no payload.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Payload) == 0 {
		return json.Marshal(m.Kind)
	}
	return json.Marshal([]any{m.Kind, m.Payload})
}

// UnmarshalJSON accepts a tagged pair ([kind] or [kind, payload]) or a bare
// string.
func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrMalformedMessage
	}

	switch data[0] {
	case '"':
		var kind string
		if err := json.Unmarshal(data, &kind); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		*m = Message{Kind: kind}
		return nil
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if len(parts) == 0 || len(parts) > 2 {
			return fmt.Errorf("%w: expected [kind, payload], got %d elements", ErrMalformedMessage, len(parts))
		}
		var kind string
		if err := json.Unmarshal(parts[0], &kind); err != nil {
			return fmt.Errorf("%w: kind must be a string", ErrMalformedMessage)
		}
		*m = Message{Kind: kind}
		if len(parts) == 2 {
			m.Payload = parts[1]
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected %q", ErrMalformedMessage, data[0])
	}
}

// Channel is a persistent, bidirectional message channel.
type Channel interface {
	// Messages delivers inbound messages in arrival order. It is closed when
	// the channel closes, from either side.
	Messages() <-chan Message
	// Send writes one message. It returns ErrClosed after the channel closed.
	Send(ctx context.Context, m Message) error
	// Close shuts the channel down. It is safe to call more than once.
	Close() error
}
