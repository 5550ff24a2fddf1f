package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/wormhole/internal/config"
	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/vk/wormhole/internal/graph"
	"github.com/vk/wormhole/internal/metrics"
	"github.com/vk/wormhole/internal/render"
	"github.com/vk/wormhole/internal/tracker"
	"github.com/vk/wormhole/internal/transport"
	"github.com/vk/wormhole/internal/update"
)

// Dialer opens a transport channel. transport.Dial is the production dialer.
type Dialer func(ctx context.Context, cfg transport.Config) (transport.Channel, error)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	config     *config.Config
	dial       Dialer
	registry   *prometheus.Registry
	session    *tracker.Session
	httpServer *http.Server
}

// Option configures an App.
type Option func(*App)

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(a *App) { a.dial = d }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and metrics
// registry.
func NewApp(outW io.Writer, cfg *config.Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.Log, outW)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	renderer, err := newRenderer(cfg.Render)
	if err != nil {
		return nil, err
	}

	merger := update.NewMerger(graph.New(), renderer, update.WithMetrics(m))
	session := tracker.New(merger,
		tracker.WithBackupInterval(cfg.Tracking.BackupInterval),
		tracker.WithAutoTrack(cfg.Tracking.AutoTrack),
		tracker.WithMetrics(m),
	)
	logger.Debug("Session created.", "session", session.ID(), "renderer", cfg.Render.Kind)

	a := &App{
		ctx:      ctxlog.WithLogger(context.Background(), logger),
		logger:   logger,
		config:   cfg,
		dial:     transport.Dial,
		registry: reg,
		session:  session,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Session returns the tracker session. This is primarily for testing.
func (a *App) Session() *tracker.Session {
	return a.session
}

func newRenderer(cfg config.Render) (render.Renderer, error) {
	switch cfg.Kind {
	case config.RenderLog, "":
		return render.Log{}, nil
	case config.RenderDOT:
		return render.Multi{render.Log{}, render.NewDOT(cfg.Path)}, nil
	case config.RenderNone:
		return render.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Kind)
	}
}
