// Package snapshot converts a graph store to and from its transport-safe,
// name-addressed form. Link endpoints are flattened to names so that a node
// referenced by many links is serialized once and no cyclic object graph
// ever crosses the transport boundary.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/wormhole/internal/graph"
)

// Snapshot is the wire form of a complete graph.
type Snapshot struct {
	Current string `json:"current"`
	Nodes   []Node `json:"nodes"`
	Links   []Link `json:"links"`
}

// Names returns the node names in order.
func (s Snapshot) Names() []Name {
	out := make([]Name, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n.Name)
	}
	return out
}

// Node is a snapshot node entry. Layout is nil when the node carries no
// layout state; such a node encodes as a bare name. Otherwise it encodes as
// {"name": "A", "x": 1, "y": 2, "fixed": true}.
type Node struct {
	Name   Name
	Layout *graph.Layout
}

// NodesOf builds layout-free node entries.
func NodesOf(names ...string) []Node {
	out := make([]Node, 0, len(names))
	for _, name := range names {
		out = append(out, Node{Name: Name(name)})
	}
	return out
}

type nodeObject struct {
	Name  string   `json:"name"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Fixed *bool    `json:"fixed,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Layout == nil {
		return json.Marshal(string(n.Name))
	}
	l := *n.Layout
	return json.Marshal(nodeObject{Name: string(n.Name), X: &l.X, Y: &l.Y, Fixed: &l.Fixed})
}

// UnmarshalJSON implements json.Unmarshaler. A bare string or an object
// without any of x, y and fixed yields a nil Layout.
func (n *Node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		n.Layout = nil
		return n.Name.UnmarshalJSON(data)
	}

	var obj nodeObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("node entry must be a string or an object with a name: %w", err)
	}
	n.Name = Name(obj.Name)
	n.Layout = nil
	if obj.X == nil && obj.Y == nil && obj.Fixed == nil {
		return nil
	}
	var l graph.Layout
	if obj.X != nil {
		l.X = *obj.X
	}
	if obj.Y != nil {
		l.Y = *obj.Y
	}
	if obj.Fixed != nil {
		l.Fixed = *obj.Fixed
	}
	n.Layout = &l
	return nil
}

// Link is a name-addressed link.
type Link struct {
	Source Name `json:"source"`
	Target Name `json:"target"`
}

// Name is a system name. On decode it accepts either a bare string or an
// object carrying a "name" field, which is how node data materialized by a
// layout engine arrives.
type Name string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Name) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Name(s)
		return nil
	}

	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("system name must be a string or an object with a name: %w", err)
	}
	*n = Name(obj.Name)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. The keys source_name and
// target_name are accepted as aliases of source and target.
func (l *Link) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source     Name `json:"source"`
		Target     Name `json:"target"`
		SourceName Name `json:"source_name"`
		TargetName Name `json:"target_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Source = raw.Source
	if l.Source == "" {
		l.Source = raw.SourceName
	}
	l.Target = raw.Target
	if l.Target == "" {
		l.Target = raw.TargetName
	}
	return nil
}

// Encode produces the wire form of the store. Nodes whose layout was never
// set encode as bare names.
func Encode(s *graph.Store) Snapshot {
	nodes := s.Nodes()
	links := s.Links()

	out := Snapshot{
		Current: s.Current(),
		Nodes:   make([]Node, 0, len(nodes)),
		Links:   make([]Link, 0, len(links)),
	}
	for _, n := range nodes {
		entry := Node{Name: Name(n.Name)}
		if l := n.Layout(); l != (graph.Layout{}) {
			entry.Layout = &l
		}
		out.Nodes = append(out.Nodes, entry)
	}
	for _, l := range links {
		out.Links = append(out.Links, Link{
			Source: Name(l.Source.Name),
			Target: Name(l.Target.Name),
		})
	}
	return out
}

// Decode builds a fresh store from a snapshot. Every declared node is
// resolved first and given its layout, then every link, then the current
// marker is set. A link
// naming an undeclared system still resolves; the node is created.
//
// Decode is best effort: malformed entries are skipped and reported through
// the returned error, and the returned store is always usable.
func Decode(snap Snapshot) (*graph.Store, error) {
	store := graph.New()
	var errs []error

	for i, entry := range snap.Nodes {
		n, err := store.ResolveOrCreate(string(entry.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			continue
		}
		if entry.Layout != nil {
			n.SetLayout(*entry.Layout)
		}
	}
	for i, l := range snap.Links {
		link, err := store.ResolveLink(string(l.Source), string(l.Target))
		if err != nil {
			errs = append(errs, fmt.Errorf("link %d: %w", i, err))
			continue
		}
		if err := store.AppendLink(link); err != nil {
			errs = append(errs, fmt.Errorf("link %d: %w", i, err))
		}
	}
	store.SetCurrent(snap.Current)

	return store, errors.Join(errs...)
}

// Parse decodes the JSON payload of a recover message. An empty or null
// payload yields an empty snapshot.
func Parse(payload json.RawMessage) (Snapshot, error) {
	var snap Snapshot
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return snap, nil
	}
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: malformed snapshot: %v", graph.ErrInvalidUpdate, err)
	}
	return snap, nil
}
