package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/middleware"
)

// HealthPinger はヘルスチェックで使用するデータベース疎通確認のインターフェース。
type HealthPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	DeviceConfig      middleware.DeviceConfig

	// サービス
	CartService    CartServiceInterface
	SuggestService SuggestLookupInterface

	// 運用
	HealthPinger    HealthPinger
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Device → Identity → CSRF → RateLimit(General)
//
// 運用ルート（/health, /metrics, /api/csrf-token）はレート制限とCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効く外側のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewDeviceMiddleware(deps.DeviceConfig))
	r.Use(middleware.NewIdentityMiddleware())

	cartHandler := NewCartHandler(deps.CartService)
	suggestHandler := NewSuggestHandler(deps.SuggestService)

	// --- 運用ルート ---

	r.Get("/health", NewHealthHandler(deps.HealthPinger))

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- APIルート ---
	// ミドルウェアスタック: CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/cart", func(r chi.Router) {
			// POST /api/cart/items - カート追加（追加専用レート制限を追加）
			r.With(deps.RateLimiter.CartAddMiddleware()).Post("/items", cartHandler.AddItem)

			r.Post("/sync", cartHandler.Sync)
			r.Get("/count", cartHandler.Count)
			r.Get("/badge", cartHandler.Badge)
		})

		// GET /api/suggestions - 商品サジェスト
		r.Get("/api/suggestions", suggestHandler.Suggestions)
	})

	return r
}

// NewHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// GET /health
// データベース疎通が取れない場合は503を返す。
func NewHealthHandler(pinger HealthPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pinger.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "unhealthy",
					"reason": "database unreachable",
				})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
