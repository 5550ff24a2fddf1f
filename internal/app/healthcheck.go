package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/vk/wormhole/internal/tracker"
)

// Handler returns the local HTTP control surface.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", a.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/status", a.statusHandler)
	r.Get("/graph", a.graphHandler)

	r.Post("/track", a.commandHandler("track", a.session.Track))
	r.Post("/stop", a.commandHandler("stop", a.session.Stop))
	r.Post("/reset", a.commandHandler("reset", a.session.Reset))
	return r
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *App) graphHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Merger().Saved())
}

func (a *App) commandHandler(name string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := a.logger.With("command", name, "request_id", chimiddleware.GetReqID(r.Context()))
		err := fn(r.Context())
		switch {
		case err == nil:
			logger.Info("Command accepted.")
			writeJSON(w, http.StatusAccepted, a.session.Status())
		case errors.Is(err, tracker.ErrNotConnected):
			logger.Warn("Command rejected: not connected.")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			logger.Error("Command failed.", "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// startHTTPServer binds the control surface and serves it in the
// background. A non-positive port disables it.
func (a *App) startHTTPServer() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring HTTP server.")
	if a.config.HTTP.Port <= 0 {
		logger.Info("HTTP server not started: disabled")
		return nil
	}

	addr := fmt.Sprintf(":%d", a.config.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 HTTP server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeHTTPServer() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Closing HTTP server...")

	if a.httpServer == nil {
		logger.Debug("HTTP server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}

	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
