// Package tracker runs the single-writer session loop that connects the
// transport to the update merger.
//
// Everything that mutates the graph (inbound updates, recoveries, operator
// commands and the periodic backup) is serialized through one goroutine, the
// loop started by Run. Other goroutines interact with a session only through
// the command methods and Status.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/wormhole/internal/ctxlog"
	"github.com/vk/wormhole/internal/metrics"
	"github.com/vk/wormhole/internal/snapshot"
	"github.com/vk/wormhole/internal/transport"
	"github.com/vk/wormhole/internal/update"
)

// DefaultBackupInterval is how often the saved snapshot is reported while
// tracking.
const DefaultBackupInterval = 3 * time.Second

var (
	// ErrNotConnected is returned by commands while no loop is running.
	ErrNotConnected = errors.New("session is not connected")

	// ErrAlreadyRunning is returned by Run when another loop owns the session.
	ErrAlreadyRunning = errors.New("session is already running")
)

// Status is a point-in-time view of a session.
type Status struct {
	SessionID string `json:"session_id"`
	Connected bool   `json:"connected"`
	Tracking  bool   `json:"tracking"`
	Systems   int    `json:"systems"`
	Links     int    `json:"links"`
	Current   string `json:"current"`
	Notice    string `json:"notice,omitempty"`
}

type command struct {
	kind  string
	reply chan error
}

// Session owns a merger and drives it from a transport channel. Its graph
// state outlives any single connection: Run may be called again with a new
// channel after the previous one closed.
type Session struct {
	id             string
	merger         *update.Merger
	notifier       Notifier
	metrics        *metrics.Metrics
	backupInterval time.Duration
	autoTrack      bool

	commands chan command

	mu        sync.RWMutex
	stopped   chan struct{} // non-nil while a loop runs
	connected bool
	tracking  bool
	notice    string
}

// Option configures a Session.
type Option func(*Session)

// WithBackupInterval sets the backup cadence. Non-positive values are ignored.
func WithBackupInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.backupInterval = d
		}
	}
}

// WithAutoTrack makes every Run start tracking as soon as it begins.
func WithAutoTrack(enabled bool) Option {
	return func(s *Session) { s.autoTrack = enabled }
}

// WithNotifier sets where server notices go.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithMetrics records message and backup activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates a session over merger.
func New(merger *update.Merger, opts ...Option) *Session {
	s := &Session{
		id:             uuid.NewString(),
		merger:         merger,
		notifier:       LogNotifier{},
		backupInterval: DefaultBackupInterval,
		commands:       make(chan command),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier attached to its logs.
func (s *Session) ID() string {
	return s.id
}

// Merger returns the merger the session drives.
func (s *Session) Merger() *update.Merger {
	return s.merger
}

// Status reports the current session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		SessionID: s.id,
		Connected: s.connected,
		Tracking:  s.tracking,
		Notice:    s.notice,
	}
	s.mu.RUnlock()

	store := s.merger.Store()
	st.Systems, st.Links = store.Len()
	st.Current = store.Current()
	return st
}

// Track asks the server to start tracking and starts the periodic backup.
func (s *Session) Track(ctx context.Context) error {
	return s.submit(ctx, transport.CommandTrack)
}

// Stop asks the server to stop tracking and stops the periodic backup.
func (s *Session) Stop(ctx context.Context) error {
	return s.submit(ctx, transport.CommandStop)
}

// Reset asks the server to forget the route and clears the local graph in
// the same step. The graph is cleared even when the command cannot be sent;
// the returned error then reports the failed send, wrapping ErrNotConnected
// when there was no connection.
func (s *Session) Reset(ctx context.Context) error {
	err := s.submit(ctx, transport.CommandReset)
	if errors.Is(err, ErrNotConnected) {
		return errors.Join(s.resetOffline(ctx), err)
	}
	return err
}

// resetOffline clears the graph while no Run owns the merger.
func (s *Session) resetOffline(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped != nil {
		// A Run started meanwhile and owns the merger.
		return nil
	}
	s.tracking = false
	return s.merger.Reset(ctx)
}

func (s *Session) submit(ctx context.Context, kind string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped == nil {
		return ErrNotConnected
	}

	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-stopped:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes ch until ctx is cancelled or the channel closes. It returns
// ctx.Err() on cancellation and an error wrapping transport.ErrClosed when
// the channel closed. The graph is never cleared on return. Run does not
// close ch.
func (s *Session) Run(ctx context.Context, ch transport.Channel) error {
	stopped := make(chan struct{})
	s.mu.Lock()
	if s.stopped != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.stopped = stopped
	s.connected = true
	s.mu.Unlock()

	ctx = ctxlog.With(ctx, "session", s.id)
	logger := ctxlog.FromContext(ctx)
	logger.Info("Session loop started.")

	l := &loop{Session: s, ch: ch, logger: logger}
	defer func() {
		l.stopBackups()
		s.mu.Lock()
		s.stopped = nil
		s.connected = false
		s.tracking = false
		s.mu.Unlock()
		close(stopped)
		logger.Info("Session loop stopped.")
	}()

	if s.autoTrack {
		if err := l.exec(ctx, transport.CommandTrack); err != nil {
			logger.Warn("Failed to start tracking.", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch.Messages():
			if !ok {
				logger.Warn("Connection closed; graph state kept.")
				return fmt.Errorf("session %s: %w", s.id, transport.ErrClosed)
			}
			l.handle(ctx, m)
		case cmd := <-s.commands:
			cmd.reply <- l.exec(ctx, cmd.kind)
		case <-l.tick:
			l.backup(ctx)
		}
	}
}

// loop holds the state private to one Run invocation.
type loop struct {
	*Session
	ch     transport.Channel
	logger *slog.Logger

	ticker *time.Ticker
	tick   <-chan time.Time
}

func (l *loop) handle(ctx context.Context, m transport.Message) {
	l.metrics.MessageReceived(m.Kind)

	switch m.Kind {
	case transport.KindUpdate:
		l.setNotice(ctx, "")
		env, err := update.Parse(m.Payload)
		if env == nil {
			l.logger.Warn("Dropping malformed update.", "error", err)
			return
		}
		if err != nil {
			l.logger.Warn("Dropping malformed update fragments.", "error", err)
		}
		if err := l.merger.Apply(ctx, env); err != nil {
			l.logger.Debug("Update applied partially.", "error", err)
		}

	case transport.KindRecover, transport.KindGraph:
		snap, err := snapshot.Parse(m.Payload)
		if err != nil {
			l.logger.Warn("Dropping malformed snapshot.", "error", err)
			return
		}
		if err := l.merger.Recover(ctx, snap); err != nil {
			l.logger.Debug("Snapshot recovered partially.", "error", err)
		}

	case transport.KindNotice, transport.KindWarning:
		l.setNotice(ctx, noticeText(m.Payload))

	default:
		l.logger.Debug("Ignoring message.", "kind", m.Kind)
	}
}

func (l *loop) setNotice(ctx context.Context, text string) {
	l.mu.Lock()
	changed := l.notice != text
	l.notice = text
	l.mu.Unlock()
	if changed {
		l.notifier.Notify(ctx, text)
	}
}

// noticeText accepts a JSON string payload and falls back to the raw JSON
// for anything else.
func noticeText(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		return text
	}
	if string(payload) == "null" {
		return ""
	}
	return string(payload)
}

func (l *loop) exec(ctx context.Context, kind string) error {
	sendErr := l.ch.Send(ctx, transport.Command(kind))
	if sendErr != nil {
		sendErr = fmt.Errorf("failed to send %s: %w", kind, sendErr)
		if kind != transport.CommandReset {
			return sendErr
		}
		l.logger.Warn("Reset not delivered; clearing the local graph anyway.", "error", sendErr)
	}

	switch kind {
	case transport.CommandTrack:
		l.setTracking(true)
		l.startBackups()
	case transport.CommandStop:
		l.setTracking(false)
		l.stopBackups()
	case transport.CommandReset:
		l.setTracking(false)
		l.stopBackups()
		if err := l.merger.Reset(ctx); err != nil {
			return errors.Join(sendErr, err)
		}
	}
	if sendErr != nil {
		return sendErr
	}
	l.logger.Info("Command sent.", "command", kind)
	return nil
}

func (l *loop) setTracking(tracking bool) {
	l.mu.Lock()
	l.tracking = tracking
	l.mu.Unlock()
}

func (l *loop) startBackups() {
	if l.ticker != nil {
		return
	}
	l.ticker = time.NewTicker(l.backupInterval)
	l.tick = l.ticker.C
}

func (l *loop) stopBackups() {
	if l.ticker == nil {
		return
	}
	l.ticker.Stop()
	l.ticker = nil
	l.tick = nil
}

func (l *loop) backup(ctx context.Context) {
	msg, err := transport.NewMessage(transport.KindBackup, l.merger.Saved())
	if err == nil {
		err = l.ch.Send(ctx, msg)
	}
	l.metrics.BackupSent(err)
	if err != nil {
		l.logger.Warn("Backup failed.", "error", err)
		return
	}
	l.logger.Debug("Backup sent.")
}
