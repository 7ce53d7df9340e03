package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/podium/internal/app"
	"github.com/MrWong99/podium/internal/config"
	"github.com/MrWong99/podium/internal/meeting"
	"github.com/MrWong99/podium/internal/resilience"
	"github.com/MrWong99/podium/pkg/provider/stt"
	sttmock "github.com/MrWong99/podium/pkg/provider/stt/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      "127.0.0.1:0",
			LogLevel:        config.LogInfo,
			ShutdownTimeout: 2 * time.Second,
		},
		Store: config.StoreConfig{Driver: config.StoreMemory},
	}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_MemoryStore(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig())
	if _, ok := a.Store().(*meeting.MemStore); !ok {
		t.Errorf("Store() = %T, want *meeting.MemStore", a.Store())
	}
}

func TestNew_InjectedStore(t *testing.T) {
	t.Parallel()
	store := meeting.NewMemStore()
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Driver: config.StorePostgres, PostgresDSN: "postgres://unused"}

	a := newApp(t, cfg, app.WithStore(store))
	if a.Store() != store {
		t.Error("injected store should win over the configured driver")
	}
}

func TestNew_BadPostgresDSN(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Driver: config.StorePostgres, PostgresDSN: "postgres://u:p@localhost:notaport/db"}

	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("New should fail on an unparsable DSN")
	}
}

func TestHandler_Routes(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig())
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/meetings", `{"title":"Daily","speakers":[{"name":"Ana"}]}`, http.StatusCreated},
		{http.MethodGet, "/meetings/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestReadyz_RecognizerBreakers(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{StartStreamErr: errors.New("unauthorized")}
	rec, err := resilience.NewRecognizer(resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		resilience.Backend{Name: "deepgram", Provider: provider})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	a, err := app.New(context.Background(), testConfig(), rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	readyz := func() int {
		t.Helper()
		resp, err := http.Get(ts.URL + "/readyz")
		if err != nil {
			t.Fatalf("GET /readyz: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if got := readyz(); got != http.StatusOK {
		t.Fatalf("readyz before failures = %d, want 200", got)
	}
	if _, err := rec.StartStream(context.Background(), stt.StreamConfig{}); err == nil {
		t.Fatal("StartStream should fail")
	}
	if got := readyz(); got != http.StatusServiceUnavailable {
		t.Errorf("readyz with every breaker open = %d, want 503", got)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown #%d: %v", i+1, err)
		}
	}
}

func TestReload_LogLevel(t *testing.T) {
	t.Parallel()
	level := new(slog.LevelVar)
	a := newApp(t, testConfig(), app.WithLogLevel(level))

	old := testConfig()
	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	a.Reload(old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestConfigWatch_AppliesEdits(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "podium.yaml")
	write := func(level string, mtime time.Time) {
		t.Helper()
		if err := os.WriteFile(path, []byte("server:\n  log_level: "+level+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	write("info", time.Now().Add(-time.Hour))

	level := new(slog.LevelVar)
	a := newApp(t, testConfig(), app.WithLogLevel(level), app.WithConfigWatch(path, 10*time.Millisecond))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	write("error", time.Now())

	deadline := time.Now().Add(3 * time.Second)
	for level.Level() != slog.LevelError {
		if time.Now().After(deadline) {
			t.Fatalf("level = %v, want error after the file changed", level.Level())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
