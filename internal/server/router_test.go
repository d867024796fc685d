package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"messenger/internal/config"
	"messenger/internal/db"
	"messenger/internal/ws"

	"github.com/gin-gonic/gin"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Load()
	cfg.AccessTokenSecret = "test-access-secret"
	cfg.RefreshTokenSecret = "test-refresh-secret"
	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return SetupRouter(cfg, gdb, ws.NewHub(), ws.NewRegistry())
}

func TestHealthz(t *testing.T) {
	engine := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Status      string `json:"status"`
		OnlineUsers int    `json:"online_users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.OnlineUsers != 0 {
		t.Errorf("online_users with no connections = %d, want 0", body.OnlineUsers)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	engine := testRouter(t)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/users/profile"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/chat/conversations"},
		{http.MethodPost, "/api/v1/chat/conversations"},
		{http.MethodGet, "/api/v1/chat/conversations/1/messages"},
		{http.MethodGet, "/api/v1/admin/users"},
	}
	for _, tt := range protected {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", tt.method, tt.path, w.Code)
		}
	}
}

func TestWs_RejectsMissingToken(t *testing.T) {
	engine := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ws handshake without token = %d, want 401", w.Code)
	}
}

func TestWs_RejectsBadToken(t *testing.T) {
	engine := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=not.a.jwt", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ws handshake with bad token = %d, want 401", w.Code)
	}
}
