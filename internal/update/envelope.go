package update

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/wormhole/internal/graph"
	"github.com/vk/wormhole/internal/snapshot"
)

// Envelope is one incremental update. Every field is optional; a nil
// pointer or empty slice means "not present".
//
// The singular Node and Link fields are the canonical form. Nodes and Links
// carry the batch form the tracking server emits when it announces a jump:
//
//	{"current": "B", "nodes": [{"name": "B"}], "links": [{"source": {"name": "A"}, "target": {"name": "B"}}]}
type Envelope struct {
	Current *string         `json:"current,omitempty"`
	Node    *snapshot.Name  `json:"node,omitempty"`
	Nodes   []snapshot.Name `json:"nodes,omitempty"`
	Link    *snapshot.Link  `json:"link,omitempty"`
	Links   []snapshot.Link `json:"links,omitempty"`
}

// IsEmpty reports whether the envelope carries no fragment at all.
func (e *Envelope) IsEmpty() bool {
	return e == nil || (e.Current == nil && e.Node == nil && len(e.Nodes) == 0 && e.Link == nil && len(e.Links) == 0)
}

// Parse decodes the payload of an update message. An empty or null payload
// yields an empty envelope.
//
// Each field is decoded on its own, and so is each element of nodes and
// links. A malformed fragment is left out of the envelope and reported in
// the returned error; the envelope still carries every good fragment. Only
// a payload that is not a JSON object returns a nil envelope.
func Parse(payload json.RawMessage) (*Envelope, error) {
	env := &Envelope{}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return env, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", graph.ErrInvalidUpdate, err)
	}

	var errs []error
	bad := func(field string, err error) {
		errs = append(errs, fmt.Errorf("%w: malformed %s: %v", graph.ErrInvalidUpdate, field, err))
	}

	if raw, ok := present(fields, "current"); ok {
		var current string
		if err := json.Unmarshal(raw, &current); err != nil {
			bad("current", err)
		} else {
			env.Current = &current
		}
	}
	if raw, ok := present(fields, "node"); ok {
		var node snapshot.Name
		if err := json.Unmarshal(raw, &node); err != nil {
			bad("node", err)
		} else {
			env.Node = &node
		}
	}
	if raw, ok := present(fields, "link"); ok {
		var link snapshot.Link
		if err := json.Unmarshal(raw, &link); err != nil {
			bad("link", err)
		} else {
			env.Link = &link
		}
	}
	if raw, ok := present(fields, "nodes"); ok {
		env.Nodes = decodeEach[snapshot.Name](raw, "nodes", bad)
	}
	if raw, ok := present(fields, "links"); ok {
		env.Links = decodeEach[snapshot.Link](raw, "links", bad)
	}

	return env, errors.Join(errs...)
}

// present returns the raw field unless it is absent or null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeEach[T any](raw json.RawMessage, field string, bad func(string, error)) []T {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		bad(field, err)
		return nil
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			bad(fmt.Sprintf("%s[%d]", field, i), err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// NodeEnvelope is a convenience constructor for a node announcement.
func NodeEnvelope(name string) *Envelope {
	n := snapshot.Name(name)
	return &Envelope{Node: &n}
}

// LinkEnvelope is a convenience constructor for a link announcement.
func LinkEnvelope(source, target string) *Envelope {
	return &Envelope{Link: &snapshot.Link{Source: snapshot.Name(source), Target: snapshot.Name(target)}}
}

// CurrentEnvelope is a convenience constructor for a location change.
func CurrentEnvelope(name string) *Envelope {
	return &Envelope{Current: &name}
}
