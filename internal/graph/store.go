package graph

import (
	"fmt"
	"sync"
)

// Store is the graph aggregate: the node set keyed by name, the ordered link
// sequence, and the current-location marker.
//
// Invariant: every link's endpoints are members of the node set. The current
// marker may name a system that is not (yet) a node.
type Store struct {
	mu      sync.RWMutex
	current string
	nodes   map[string]*Node
	order   []*Node // insertion order, for stable rendering
	links   []*Link
}

// New creates an empty graph store.
func New() *Store {
	return &Store{
		nodes: make(map[string]*Node),
	}
}

// Current returns the name of the occupied system, or "" for none.
func (s *Store) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent sets the current-location marker unconditionally. The name is
// not required to match a node; a location update may arrive before the
// system is announced.
func (s *Store) SetCurrent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = name
}

// Node looks up a node by name.
func (s *Store) Node(name string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	return n, ok
}

// CurrentNode returns the node named by the current marker, if it exists.
func (s *Store) CurrentNode() (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return nil, false
	}
	n, ok := s.nodes[s.current]
	return n, ok
}

// Nodes returns the nodes in insertion order. The slice is a copy; the
// node pointers are shared with the store.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, len(s.order))
	copy(out, s.order)
	return out
}

// Links returns the links in arrival order. The slice is a copy.
func (s *Store) Links() []*Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Link, len(s.links))
	copy(out, s.links)
	return out
}

// Len returns the number of nodes and links.
func (s *Store) Len() (nodes, links int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), len(s.links)
}

// AppendLink adds a resolved link to the link sequence. Both endpoints must
// be the exact node objects held by this store. Duplicate links between the
// same pair are kept.
func (s *Store) AppendLink(l *Link) error {
	if l == nil || l.Source == nil || l.Target == nil {
		return fmt.Errorf("%w: link has no endpoints", ErrUnresolvableLink)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[l.Source.Name] != l.Source {
		return fmt.Errorf("%w: source %q is not a member of this graph", ErrUnresolvableLink, l.Source.Name)
	}
	if s.nodes[l.Target.Name] != l.Target {
		return fmt.Errorf("%w: target %q is not a member of this graph", ErrUnresolvableLink, l.Target.Name)
	}
	s.links = append(s.links, l)
	return nil
}

// Reset discards every node and link and clears the current marker.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.nodes = make(map[string]*Node)
	s.order = nil
	s.links = nil
}

// Replace moves the contents of other into s, discarding everything s held
// before. other is left empty. Holders of the *Store pointer keep a valid
// reference across a snapshot recover.
func (s *Store) Replace(other *Store) {
	if other == nil || other == s {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	s.current = other.current
	s.nodes = other.nodes
	s.order = other.order
	s.links = other.links

	other.current = ""
	other.nodes = make(map[string]*Node)
	other.order = nil
	other.links = nil
}
