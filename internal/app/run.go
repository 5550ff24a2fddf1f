package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/vk/wormhole/internal/transport"
)

// Run connects to the map server and runs the tracker session until ctx is
// cancelled. A lost or refused connection is redialed after the configured
// reconnect delay; the graph survives across connections.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.startHTTPServer(); err != nil {
		return err
	}
	defer a.closeHTTPServer()

	cfg := a.config.Server.TransportConfig()
	delay := a.config.Server.ReconnectDelay
	for {
		err := a.connectOnce(ctx, cfg)
		if ctx.Err() != nil {
			a.logger.Info("🏁 Shutting down.")
			a.logger.Debug("App.Run method finished.")
			return nil
		}
		a.logger.Warn("Connection lost, reconnecting.", "error", err, "delay", delay.String())

		select {
		case <-ctx.Done():
			a.logger.Info("🏁 Shutting down.")
			return nil
		case <-time.After(delay):
		}
	}
}

func (a *App) connectOnce(ctx context.Context, cfg transport.Config) error {
	a.logger.Info("🚀 Connecting to map server...", "url", cfg.URL, "transport", cfg.Transport)
	ch, err := a.dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ch.Close()
	return a.session.Run(ctx, ch)
}
