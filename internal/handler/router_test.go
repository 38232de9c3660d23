package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cartsync/internal/badge"
	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
)

// mockHealthPinger はHealthPingerのテスト用実装。
type mockHealthPinger struct {
	err error
}

func (m *mockHealthPinger) PingContext(ctx context.Context) error {
	return m.err
}

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rateLimiter.Stop)

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	deps := &RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rateLimiter,
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: false},
		DeviceConfig:      middleware.DeviceConfig{CookieMaxAge: 86400},
		CartService: &mockCartService{
			addItemFn: func(ctx context.Context, deviceID, userID string, authenticated bool, productID int64, colorID *int64, quantity int) (*cart.AddResult, error) {
				return &cart.AddResult{
					Items:   []model.CartLineItem{{ProductID: productID, Quantity: quantity}},
					Badge:   badge.Compute(quantity),
					Message: "カートに追加しました",
				}, nil
			},
			syncFn: func(ctx context.Context, deviceID, userID string) (*cart.SyncResult, error) {
				return &cart.SyncResult{Synced: true, Badge: badge.Compute(0)}, nil
			},
			badgeFn: func(ctx context.Context, deviceID, userID string, authenticated bool) cart.BadgeStatus {
				return cart.BadgeStatus{Badge: badge.Compute(2)}
			},
			remoteCountFn: func(ctx context.Context, userID string) int { return 7 },
			localCountFn:  func(ctx context.Context, deviceID string) int { return 2 },
		},
		SuggestService: &mockSuggestLookup{
			lookupFn: func(ctx context.Context, target, keyword string) ([]model.Suggestion, error) {
				return []model.Suggestion{}, nil
			},
		},
		HealthPinger:    &mockHealthPinger{},
		MetricsGatherer: registry,
	}

	return NewRouter(deps)
}

// 有効なデバイスCookie値。デバイスミドルウェアはUUID形式のみ受け付ける。
const testDeviceID = "4b67f1f2-9a1c-4f76-b0a2-99f1b9c2d301"

// addIdentityCookies はデバイスCookieとCSRFトークンをリクエストに載せる。
func addIdentityCookies(req *http.Request, withCSRF bool) {
	req.AddCookie(&http.Cookie{Name: "cartsync_device", Value: testDeviceID})
	if withCSRF {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-token"})
		req.Header.Set("X-CSRF-Token", "test-token")
	}
}

// TestNewRouter_HealthEndpoint はヘルスチェックが200を返すことを検証する。
func TestNewRouter_HealthEndpoint(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body map[string]string
	json.NewDecoder(w.Result().Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

// TestNewHealthHandler_DatabaseUnreachable はDB疎通失敗時に503が返ることを検証する。
func TestNewHealthHandler_DatabaseUnreachable(t *testing.T) {
	handler := NewHealthHandler(&mockHealthPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}

	var body map[string]string
	json.NewDecoder(w.Result().Body).Decode(&body)
	if body["status"] != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", body["status"])
	}
}

// TestNewRouter_MetricsEndpoint は/metricsがPrometheus形式で公開されることを検証する。
func TestNewRouter_MetricsEndpoint(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestNewRouter_CSRFTokenEndpoint はCSRFトークン取得がレート制限の外にあることを検証する。
func TestNewRouter_CSRFTokenEndpoint(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("GET /api/csrf-token status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body map[string]string
	json.NewDecoder(w.Result().Body).Decode(&body)
	if body["token"] == "" {
		t.Error("expected non-empty CSRF token")
	}
}

// TestNewRouter_IssuesDeviceCookie は初回リクエストでデバイスCookieが発行されることを検証する。
func TestNewRouter_IssuesDeviceCookie(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cart/badge", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("GET /api/cart/badge status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "cartsync_device" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected cartsync_device cookie to be issued")
	}
}

// TestNewRouter_PostRequiresCSRF はPOSTリクエストにCSRFトークンが必須であることを検証する。
func TestNewRouter_PostRequiresCSRF(t *testing.T) {
	router := createTestRouter(t)

	body := `{"productId":10,"quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addIdentityCookies(req, false)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("POST /api/cart/items (no CSRF) status = %d, want %d",
			w.Result().StatusCode, http.StatusForbidden)
	}
}

// TestNewRouter_AddItem_WithCSRF_Succeeds はCSRFトークン付きのカート追加が成功することを検証する。
func TestNewRouter_AddItem_WithCSRF_Succeeds(t *testing.T) {
	router := createTestRouter(t)

	body := `{"productId":10,"quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addIdentityCookies(req, true)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("POST /api/cart/items status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestNewRouter_Sync_GuestReturns401 はX-User-IDなしの同期リクエストが401になることを検証する。
func TestNewRouter_Sync_GuestReturns401(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/sync", nil)
	addIdentityCookies(req, true)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("POST /api/cart/sync (guest) status = %d, want %d",
			w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestNewRouter_Sync_WithUserHeader_Succeeds はX-User-ID付きの同期が成功することを検証する。
func TestNewRouter_Sync_WithUserHeader_Succeeds(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/sync", nil)
	req.Header.Set("X-User-ID", "user-42")
	addIdentityCookies(req, true)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("POST /api/cart/sync status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestNewRouter_Count_UsesIdentity は件数取得が認証状態で応答を切り替えることを検証する。
func TestNewRouter_Count_UsesIdentity(t *testing.T) {
	router := createTestRouter(t)

	// ゲストはローカル件数
	req := httptest.NewRequest(http.MethodGet, "/api/cart/count", nil)
	addIdentityCookies(req, false)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var guestBody countResponse
	json.NewDecoder(w.Result().Body).Decode(&guestBody)
	if guestBody.Count != 2 {
		t.Errorf("guest count = %d, want 2", guestBody.Count)
	}

	// 認証済みは上流件数
	req2 := httptest.NewRequest(http.MethodGet, "/api/cart/count", nil)
	req2.Header.Set("X-User-ID", "user-42")
	addIdentityCookies(req2, false)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	var authBody countResponse
	json.NewDecoder(w2.Result().Body).Decode(&authBody)
	if authBody.Count != 7 {
		t.Errorf("authenticated count = %d, want 7", authBody.Count)
	}
}

// TestNewRouter_Suggestions はサジェストエンドポイントがルーティングされることを検証する。
func TestNewRouter_Suggestions(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/suggestions?keyword=vin", nil)
	addIdentityCookies(req, false)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("GET /api/suggestions status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestNewRouter_UnknownRoute_Returns404 は未定義ルートが404になることを検証する。
func TestNewRouter_UnknownRoute_Returns404(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/unknown status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// TestNewRouter_SecurityHeaders はセキュリティヘッダーが全レスポンスに付与されることを検証する。
func TestNewRouter_SecurityHeaders(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

// TestNewRouter_CORSPreflight はOPTIONSプリフライトが処理されることを検証する。
func TestNewRouter_CORSPreflight(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/cart/items", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}
