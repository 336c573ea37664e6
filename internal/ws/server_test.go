package ws

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kitbash-viewer/server/internal/config"
	"github.com/kitbash-viewer/server/internal/hub"
	"github.com/kitbash-viewer/server/internal/status"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Dir = t.TempDir()
	return cfg
}

// newTestServer wires a Server onto an httptest server. The caller owns
// the hub so tests can publish and inspect subscriptions.
func newTestServer(t *testing.T, cfg *config.Config, h *hub.Hub) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg, h, status.NewCollector(), "", false, nil)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForSubscribers polls until the hub reports want subscribers or the
// deadline passes.
func waitForSubscribers(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.SubscriberCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber count = %d, want %d", h.SubscriberCount(), want)
}

func TestHandleFiles(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"b.obj", "a.obj", "notes.txt"} {
		writeSceneFile(t, cfg.Watch.Dir, name)
	}

	ts := newTestServer(t, cfg, hub.New(10, 0))

	resp, err := http.Get(ts.URL + "/api/files")
	if err != nil {
		t.Fatalf("GET /api/files: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []string{"a.obj", "b.obj"}
	if len(body.Files) != len(want) {
		t.Fatalf("got %d files, want %d", len(body.Files), len(want))
	}
	for i, name := range want {
		if body.Files[i].Name != name {
			t.Errorf("files[%d] = %q, want %q", i, body.Files[i].Name, name)
		}
	}
}

func TestSceneFileServing(t *testing.T) {
	cfg := testConfig(t)
	writeSceneFile(t, cfg.Watch.Dir, "mesh.obj")

	ts := newTestServer(t, cfg, hub.New(10, 0))

	resp, err := http.Get(ts.URL + "/scene/mesh.obj")
	if err != nil {
		t.Fatalf("GET /scene/mesh.obj: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v 0 0 0\n" {
		t.Errorf("body = %q, want file contents", data)
	}

	resp404, err := http.Get(ts.URL + "/scene/missing.obj")
	if err != nil {
		t.Fatal(err)
	}
	resp404.Body.Close()
	if resp404.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", resp404.StatusCode)
	}
}

func TestHandleStatus(t *testing.T) {
	cfg := testConfig(t)
	ts := newTestServer(t, cfg, hub.New(10, 0))

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap status.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.PID <= 0 {
		t.Errorf("pid = %d, want > 0", snap.PID)
	}
	if snap.WatchedDir != cfg.Watch.Dir {
		t.Errorf("watched dir = %q, want %q", snap.WatchedDir, cfg.Watch.Dir)
	}
	if snap.Subscribers != 0 {
		t.Errorf("subscribers = %d, want 0", snap.Subscribers)
	}
}

func TestAuthorize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AuthToken = "secret"
	srv := NewServer(cfg, hub.New(10, 0), status.NewCollector(), "", false, nil)

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  bool
	}{
		{"NoToken", func(r *http.Request) {}, false},
		{"QueryToken", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "secret")
			r.URL.RawQuery = q.Encode()
		}, true},
		{"HeaderToken", func(r *http.Request) {
			r.Header.Set("X-Kitbash-Token", "secret")
		}, true},
		{"BearerToken", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer secret")
		}, true},
		{"WrongToken", func(r *http.Request) {
			r.Header.Set("X-Kitbash-Token", "nope")
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := srv.authorize(r); got != tt.want {
				t.Errorf("authorize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorizeNoTokenConfigured(t *testing.T) {
	srv := NewServer(testConfig(t), hub.New(10, 0), status.NewCollector(), "", false, nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !srv.authorize(r) {
		t.Error("authorize should pass when no token is configured")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"NoOrigin", nil, "", "example.com", true},
		{"SameHost", nil, "http://example.com", "example.com", true},
		{"Localhost", nil, "http://localhost:8080", "example.com", true},
		{"Loopback", nil, "http://127.0.0.1:9000", "example.com", true},
		{"OtherHost", nil, "http://evil.com", "example.com", false},
		{"AllowedExact", []string{"http://viewer.local"}, "http://viewer.local", "example.com", true},
		{"AllowedHostOnly", []string{"http://viewer.local"}, "https://viewer.local", "example.com", true},
		{"NotInAllowlist", []string{"http://viewer.local"}, "http://localhost:8080", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Server.AllowedOrigins = tt.allowed
			srv := NewServer(cfg, hub.New(10, 0), status.NewCollector(), "", false, nil)

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := srv.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestWSUnauthorized(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AuthToken = "secret"
	h := hub.New(10, 0)
	ts := newTestServer(t, cfg, h)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
	if h.SubscriberCount() != 0 {
		t.Error("rejected connection must not leave a subscription behind")
	}
}

func TestWSTooManyConnections(t *testing.T) {
	cfg := testConfig(t)
	h := hub.New(10, 1)
	ts := newTestServer(t, cfg, h)

	dialWS(t, ts)
	waitForSubscribers(t, h, 1)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial past the connection limit should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", resp)
	}
}
