package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/banmen/internal/config"
	"github.com/hitoshi/banmen/internal/middleware"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	c, err := build(context.Background(), cfg, nil, true)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	srv := httptest.NewServer(newRouter(cfg, c, rl))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWiring_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, memoryConfig(t))

	if resp := do(t, srv, http.MethodGet, "/health", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodGet, "/metrics", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodGet, "/api/game-types", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/api/game-types without identity status = %d, want 401", resp.StatusCode)
	}
}

func TestWiring_CreateMoveAndList(t *testing.T) {
	srv := newTestServer(t, memoryConfig(t))

	resp := do(t, srv, http.MethodGet, "/api/game-types", "alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/game-types status = %d", resp.StatusCode)
	}
	var types []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
		t.Fatal(err)
	}
	if len(types) == 0 {
		t.Fatal("expected builtin game types")
	}

	resp = do(t, srv, http.MethodPost, "/api/games", "alice",
		`{"game_type":"nim","participants":[{"id":"alice","name":"Alice"},{"id":"bob","name":"Bob"}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	id := created.Session.ID
	if id == "" {
		t.Fatal("created session has no id")
	}

	resp = do(t, srv, http.MethodPost, "/api/games/"+id+"/move", "alice", `{"move":"3"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move status = %d, want 200", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/api/games/"+id+"/move", "alice", `{"move":"3"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("out-of-turn move status = %d, want 409", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/api/players/me/games", "bob", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list games status = %d", resp.StatusCode)
	}
	var games []struct {
		ID        string `json:"id"`
		MoveCount int    `json:"move_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].ID != id || games[0].MoveCount != 1 {
		t.Errorf("bob's games = %+v, want the created game after one move", games)
	}
}

func TestWiring_GatewayTokenRequired(t *testing.T) {
	t.Setenv("GATEWAY_TOKEN", "s3cret")
	srv := newTestServer(t, memoryConfig(t))

	if resp := do(t, srv, http.MethodGet, "/api/game-types", "alice", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without bearer = %d, want 401", resp.StatusCode)
	}
}

func TestBuild_CustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	catalog := "games:\n  - id: quick-race\n    engine: race\n    min_players: 2\n    max_players: 2\n    capabilities: [simultaneous]\n"
	if err := os.WriteFile(path, []byte(catalog), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAME_CATALOG_PATH", path)
	cfg := memoryConfig(t)

	c, err := build(context.Background(), cfg, nil, false)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer c.Close()

	types := c.service.GameTypes()
	if len(types) != 1 || types[0].ID != "quick-race" {
		t.Errorf("GameTypes() = %+v, want only quick-race", types)
	}
	if c.hub != nil {
		t.Error("hub should not be created for the worker")
	}
}

func TestBuild_RejectsPrivateWebhook(t *testing.T) {
	t.Setenv("NOTIFY_WEBHOOK_URL", "http://127.0.0.1/hook")
	cfg := memoryConfig(t)

	if _, err := build(context.Background(), cfg, nil, false); err == nil {
		t.Fatal("build() should reject a loopback webhook URL")
	}
}

func TestBuild_SQLiteStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "banmen.db"))
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}

	c, err := build(context.Background(), cfg, nil, false)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer c.Close()

	if err := pingStore(c.store.store)(context.Background()); err != nil {
		t.Errorf("pingStore() error = %v", err)
	}
}
