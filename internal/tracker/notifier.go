package tracker

import (
	"context"

	"github.com/vk/wormhole/internal/ctxlog"
)

// Notifier surfaces operator-facing notices sent by the server. An empty
// text clears the previous notice.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// LogNotifier writes notices to the context logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, text string) {
	if text == "" {
		ctxlog.FromContext(ctx).Debug("Notice cleared.")
		return
	}
	ctxlog.FromContext(ctx).Warn("Server notice.", "notice", text)
}
