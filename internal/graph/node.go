package graph

import "sync"

// Layout carries the transient fields owned by a layout engine. The graph
// package stores them on the node and never interprets them.
type Layout struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Fixed bool    `json:"fixed"`
}

// Node is a single star system in the map.
type Node struct {
	// Name is the system's identity within a graph generation.
	// Example: "Jita"
	Name string

	mu     sync.Mutex
	layout Layout
}

// Layout returns the layout state last written by a renderer.
func (n *Node) Layout() Layout {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.layout
}

// SetLayout stores layout state on the node.
func (n *Node) SetLayout(l Layout) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.layout = l
}

// Link is an undirected wormhole connection between two systems. Source and
// Target reference nodes owned by the Store the link was resolved against.
type Link struct {
	Source *Node
	Target *Node
}
