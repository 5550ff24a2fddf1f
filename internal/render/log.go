package render

import (
	"context"

	"github.com/vk/wormhole/internal/ctxlog"
)

// Log reports each frame as a structured log line. It is the default
// renderer for headless runs.
type Log struct{}

// Clear implements Renderer.
func (Log) Clear(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Frame cleared.")
	return nil
}

// Draw implements Renderer.
func (Log) Draw(ctx context.Context, f Frame) error {
	ctxlog.FromContext(ctx).Info("Map updated.",
		"systems", len(f.Nodes),
		"links", len(f.Links),
		"current", f.Current,
		"current_known", f.Highlighted() != nil,
	)
	return nil
}
