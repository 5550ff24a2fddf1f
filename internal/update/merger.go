// Package update merges incremental, name-addressed updates into the graph
// store and drives the redraw/save cycle that follows each merge.
package update

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/vk/wormhole/internal/graph"
	"github.com/vk/wormhole/internal/metrics"
	"github.com/vk/wormhole/internal/render"
	"github.com/vk/wormhole/internal/snapshot"
)

// Merger applies envelopes and snapshots to a single graph store.
//
// Merger is not meant to be driven from several goroutines at once: the
// tracker session is its only caller for Apply, Recover and Reset. Saved and
// Store may be read from anywhere.
type Merger struct {
	store    *graph.Store
	renderer render.Renderer
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	saved snapshot.Snapshot
}

// Option configures a Merger.
type Option func(*Merger)

// WithMetrics records merge activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Merger) { mg.metrics = m }
}

// NewMerger creates a merger over store. A nil renderer draws nothing.
func NewMerger(store *graph.Store, renderer render.Renderer, opts ...Option) *Merger {
	if renderer == nil {
		renderer = render.Nop{}
	}
	m := &Merger{
		store:    store,
		renderer: renderer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.saved = snapshot.Encode(store)
	return m
}

// Store returns the graph store the merger writes to.
func (m *Merger) Store() *graph.Store {
	return m.store
}

// Saved returns the snapshot taken after the last redraw.
func (m *Merger) Saved() snapshot.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved
}

// Apply merges one envelope. Steps run in a fixed order:
//
//  1. current is set unconditionally;
//  2. node announcements are resolved (idempotent);
//  3. links are resolved and appended;
//  4. if anything was present: clear, redraw, save.
//
// A malformed fragment is dropped and logged; the remaining fragments still
// apply and nothing is rolled back. The returned error joins every dropped
// fragment and renderer failure; it never means the envelope was rejected
// as a whole.
func (m *Merger) Apply(ctx context.Context, env *Envelope) error {
	if env.IsEmpty() {
		return nil
	}
	logger := ctxlog.FromContext(ctx)
	var errs []error

	if env.Current != nil {
		m.store.SetCurrent(*env.Current)
		logger.Debug("Current location set.", "current", *env.Current)
	}

	nodes := env.Nodes
	if env.Node != nil {
		nodes = append([]snapshot.Name{*env.Node}, nodes...)
	}
	for _, name := range nodes {
		if _, err := m.store.ResolveOrCreate(string(name)); err != nil {
			logger.Warn("Dropping node fragment.", "error", err)
			m.metrics.FragmentDropped("node")
			errs = append(errs, fmt.Errorf("node: %w", err))
		}
	}

	links := env.Links
	if env.Link != nil {
		links = append([]snapshot.Link{*env.Link}, links...)
	}
	for _, l := range links {
		if err := m.addLink(l); err != nil {
			logger.Warn("Dropping link fragment.", "source", string(l.Source), "target", string(l.Target), "error", err)
			m.metrics.FragmentDropped("link")
			errs = append(errs, fmt.Errorf("link: %w", err))
		}
	}

	m.metrics.EnvelopeApplied()
	if err := m.refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Merger) addLink(l snapshot.Link) error {
	link, err := m.store.ResolveLink(string(l.Source), string(l.Target))
	if err != nil {
		return err
	}
	return m.store.AppendLink(link)
}

// Recover replaces the whole graph with the contents of snap, discarding
// every prior node, then redraws and saves. Malformed snapshot entries are
// skipped and reported in the returned error.
func (m *Merger) Recover(ctx context.Context, snap snapshot.Snapshot) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	fresh, err := snapshot.Decode(snap)
	if err != nil {
		logger.Warn("Snapshot had malformed entries; they were skipped.", "error", err)
		m.metrics.FragmentDropped("snapshot")
		errs = append(errs, err)
	}
	m.store.Replace(fresh)
	m.metrics.Recovered()

	nodes, links := m.store.Len()
	logger.Info("Graph recovered from snapshot.", "systems", nodes, "links", links, "current", m.store.Current())

	if err := m.refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reset clears the graph and the rendered frame. The saved snapshot becomes
// empty as well, so the next backup reports the cleared state.
func (m *Merger) Reset(ctx context.Context) error {
	m.store.Reset()
	m.metrics.Reset()
	m.save()

	if err := m.renderer.Clear(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("Renderer failed to clear.", "error", err)
		return fmt.Errorf("failed to clear renderer: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Graph reset.")
	return nil
}

// refresh runs clear, draw, save in that order. The save happens after the
// draw so it reads back the materialized collections, including any layout
// state the renderer attached to the nodes.
func (m *Merger) refresh(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	if err := m.renderer.Clear(ctx); err != nil {
		logger.Error("Renderer failed to clear.", "error", err)
		errs = append(errs, fmt.Errorf("failed to clear renderer: %w", err))
	}

	frame := render.FrameOf(m.store)
	if err := m.renderer.Draw(ctx, frame); err != nil {
		logger.Error("Renderer failed to draw.", "error", err)
		errs = append(errs, fmt.Errorf("failed to draw frame: %w", err))
	}
	m.metrics.Redrawn(len(frame.Nodes), len(frame.Links))

	m.save()
	return errors.Join(errs...)
}

func (m *Merger) save() {
	snap := snapshot.Encode(m.store)
	m.mu.Lock()
	m.saved = snap
	m.mu.Unlock()
}
