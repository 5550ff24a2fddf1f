package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wormhole/internal/config"
	"github.com/vk/wormhole/internal/snapshot"
	"github.com/vk/wormhole/internal/tracker"
	"github.com/vk/wormhole/internal/transport"
)

const waitFor = 2 * time.Second

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// pipeDialer hands out a fresh pipe per dial, optionally failing first.
type pipeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	pipes    chan *transport.Pipe
}

func newPipeDialer(failures int) *pipeDialer {
	return &pipeDialer{failures: failures, pipes: make(chan *transport.Pipe, 8)}
}

func (d *pipeDialer) Dial(_ context.Context, _ transport.Config) (transport.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	p := transport.NewPipe(64)
	d.pipes <- p
	return p, nil
}

func (d *pipeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) next(t *testing.T) *transport.Pipe {
	t.Helper()
	select {
	case p := <-d.pipes:
		return p
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Render.Kind = config.RenderNone
	cfg.Log.Level = "debug"
	cfg.Server.ReconnectDelay = 5 * time.Millisecond
	return cfg
}

// SetupAppTest creates a new app instance for system testing.
func SetupAppTest(t *testing.T, cfg *config.Config, opts ...Option) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	testApp, err := NewApp(logBuffer, cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("WORMHOLE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}

// startRun runs the app in the background and returns its first pipe.
func startRun(t *testing.T, a *App, d *pipeDialer) (*transport.Pipe, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Error("Run did not return after cancel")
		}
	})

	p := d.next(t)
	require.Eventually(t, func() bool { return a.Session().Status().Connected }, waitFor, time.Millisecond)
	return p, done
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewApp_UnknownRenderer(t *testing.T) {
	cfg := testConfig()
	cfg.Render.Kind = "hologram"

	_, err := NewApp(&SafeBuffer{}, cfg)
	assert.ErrorContains(t, err, "unknown renderer")
}

func TestHandler_Health(t *testing.T) {
	a, _ := SetupAppTest(t, testConfig())

	w := do(t, a.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK\n", w.Body.String())
}

func TestHandler_CommandWhileDisconnected(t *testing.T) {
	a, _ := SetupAppTest(t, testConfig())

	for _, path := range []string{"/track", "/stop", "/reset"} {
		w := do(t, a.Handler(), http.MethodPost, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}

	w := do(t, a.Handler(), http.MethodGet, "/track")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_StatusGraphAndReset(t *testing.T) {
	d := newPipeDialer(0)
	a, _ := SetupAppTest(t, testConfig(), WithDialer(d.Dial))
	p, _ := startRun(t, a, d)
	h := a.Handler()

	require.NoError(t, p.Deliver(context.Background(), transport.Message{
		Kind:    transport.KindUpdate,
		Payload: json.RawMessage(`{"current": "Tama", "link": {"source": "Tama", "target": "Kedama"}}`),
	}))
	require.Eventually(t, func() bool { return a.Session().Status().Links == 1 }, waitFor, time.Millisecond)

	w := do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	var st tracker.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Connected)
	assert.Equal(t, 2, st.Systems)
	assert.Equal(t, "Tama", st.Current)
	assert.Equal(t, a.Session().ID(), st.SessionID)

	w = do(t, h, http.MethodGet, "/graph")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var snap snapshot.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, []snapshot.Name{"Tama", "Kedama"}, snap.Names())

	w = do(t, h, http.MethodPost, "/track")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, transport.CommandTrack, (<-p.Sent()).Kind)

	w = do(t, h, http.MethodPost, "/reset")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, transport.CommandReset, (<-p.Sent()).Kind)

	w = do(t, h, http.MethodGet, "/graph")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Links)
}

func TestHandler_Metrics(t *testing.T) {
	d := newPipeDialer(0)
	a, _ := SetupAppTest(t, testConfig(), WithDialer(d.Dial))
	p, _ := startRun(t, a, d)

	require.NoError(t, p.Deliver(context.Background(), transport.Message{
		Kind:    transport.KindUpdate,
		Payload: json.RawMessage(`{"node": "Jita"}`),
	}))
	require.Eventually(t, func() bool { return a.Session().Status().Systems == 1 }, waitFor, time.Millisecond)

	w := do(t, a.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "wormhole_envelopes_applied_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestRun_ReconnectsAndKeepsGraph(t *testing.T) {
	d := newPipeDialer(2)
	a, logs := SetupAppTest(t, testConfig(), WithDialer(d.Dial))
	p, _ := startRun(t, a, d)
	assert.Equal(t, 3, d.count(), "two refused dials, then success")

	require.NoError(t, p.Deliver(context.Background(), transport.Message{
		Kind:    transport.KindUpdate,
		Payload: json.RawMessage(`{"node": "Amarr"}`),
	}))
	require.Eventually(t, func() bool { return a.Session().Status().Systems == 1 }, waitFor, time.Millisecond)

	require.NoError(t, p.Close())
	d.next(t)
	require.Eventually(t, func() bool { return a.Session().Status().Connected }, waitFor, time.Millisecond)

	assert.Equal(t, 1, a.Session().Status().Systems)
	assert.True(t, strings.Contains(logs.String(), "Connection lost, reconnecting."))
}

func TestRun_CancelReturnsNil(t *testing.T) {
	d := newPipeDialer(0)
	a, _ := SetupAppTest(t, testConfig(), WithDialer(d.Dial))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	d.next(t)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_HTTPServerServesAndShutsDown(t *testing.T) {
	cfg := testConfig()
	// Grab a free port, then release it for the app.
	probe := httptest.NewServer(http.NotFoundHandler())
	addr := probe.Listener.Addr().String()
	probe.Close()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	cfg.HTTP.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	d := newPipeDialer(0)
	a, _ := SetupAppTest(t, cfg, WithDialer(d.Dial))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	d.next(t)

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, waitFor, 5*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
	_, err = http.Get("http://" + addr + "/health")
	assert.Error(t, err, "server is shut down")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.Log{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "system", "Jita")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "wormhole", entry["app"])
	assert.Equal(t, "Jita", entry["system"])

	buf.Reset()
	newLogger(config.Log{Level: "bogus", Format: "text"}, &buf).Info("fallback")
	assert.Contains(t, buf.String(), "msg=fallback")
}
