package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUpdate reports a malformed fragment, such as an empty system name.
	ErrInvalidUpdate = errors.New("invalid update")

	// ErrUnresolvableLink reports a link whose endpoints cannot both be bound
	// to nodes. It wraps ErrInvalidUpdate.
	ErrUnresolvableLink = fmt.Errorf("%w: unresolvable link", ErrInvalidUpdate)
)

// ResolveOrCreate returns the node registered under name, creating and
// inserting it first if absent. Calling it repeatedly with the same name
// always returns the same object.
func (s *Store) ResolveOrCreate(name string) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: system name is empty", ErrInvalidUpdate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(name), nil
}

// ResolveLink binds both endpoint names to node objects, creating nodes that
// were never announced, and returns a link between them. The link is not
// added to the store; see AppendLink.
//
// Both names are checked before either is resolved, so a link with one
// empty endpoint leaves the node set untouched.
func (s *Store) ResolveLink(source, target string) (*Link, error) {
	switch {
	case source == "" && target == "":
		return nil, fmt.Errorf("%w: source and target are empty", ErrUnresolvableLink)
	case source == "":
		return nil, fmt.Errorf("%w: source is empty (target %q)", ErrUnresolvableLink, target)
	case target == "":
		return nil, fmt.Errorf("%w: target is empty (source %q)", ErrUnresolvableLink, source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Link{
		Source: s.resolveLocked(source),
		Target: s.resolveLocked(target),
	}, nil
}

// resolveLocked must be called with s.mu held for writing.
func (s *Store) resolveLocked(name string) *Node {
	if n, ok := s.nodes[name]; ok {
		return n
	}
	n := &Node{Name: name}
	s.nodes[name] = n
	s.order = append(s.order, n)
	return n
}
