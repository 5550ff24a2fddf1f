// Package render defines the bridge between the graph model and whatever
// draws it. The core hands a Frame to a Renderer after every merge; it never
// reasons about positions or pixels itself.
package render

import (
	"context"
	"errors"

	"github.com/vk/wormhole/internal/graph"
)

// Frame is a point-in-time view of the graph for drawing. Node and link
// pointers are shared with the store, so a renderer that writes layout
// state onto a node writes it onto the canonical object.
type Frame struct {
	Nodes   []*graph.Node
	Links   []*graph.Link
	Current string
}

// FrameOf captures the store's current collections.
func FrameOf(s *graph.Store) Frame {
	return Frame{
		Nodes:   s.Nodes(),
		Links:   s.Links(),
		Current: s.Current(),
	}
}

// Highlighted returns the node named by Current, or nil when the current
// system is unknown or unset.
func (f Frame) Highlighted() *graph.Node {
	if f.Current == "" {
		return nil
	}
	for _, n := range f.Nodes {
		if n.Name == f.Current {
			return n
		}
	}
	return nil
}

// Renderer consumes frames.
type Renderer interface {
	// Clear removes everything previously drawn.
	Clear(ctx context.Context) error
	// Draw renders a full frame.
	Draw(ctx context.Context, f Frame) error
}

// Nop discards every frame.
type Nop struct{}

// Clear implements Renderer.
func (Nop) Clear(context.Context) error { return nil }

// Draw implements Renderer.
func (Nop) Draw(context.Context, Frame) error { return nil }

// Multi fans every call out to each renderer in order. All renderers are
// called even if one fails; the errors are joined.
type Multi []Renderer

// Clear implements Renderer.
func (m Multi) Clear(ctx context.Context) error {
	var errs []error
	for _, r := range m {
		if err := r.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Draw implements Renderer.
func (m Multi) Draw(ctx context.Context, f Frame) error {
	var errs []error
	for _, r := range m {
		if err := r.Draw(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
