package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	CartAddRate     rate.Limit    // カート追加のレート（req/sec）。30/60
	CartAddBurst    int           // カート追加のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/device、カート追加 30 req/min/device
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		CartAddRate:     rate.Limit(30.0 / 60.0), // 0.5 req/sec
		CartAddBurst:    30,
		CleanupInterval: 5 * time.Minute,
	}
}

// deviceLimiter はデバイスごとのレートリミッターとアクセス時刻を保持する。
type deviceLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はデバイスごとのレート制限を管理する。
// ゲストにも適用できるよう、ユーザーIDではなくデバイスIDをキーとする。
// API全般のレート制限とカート追加のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*deviceLimiter

	cartAddMu       sync.RWMutex
	cartAddLimiters map[string]*deviceLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*deviceLimiter),
		cartAddLimiters: make(map[string]*deviceLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにデバイスIDが含まれている必要がある（DeviceMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(deviceID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("device_id", deviceID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CartAddMiddleware はカート追加専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) CartAddMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			limiter := rl.getOrCreateCartAddLimiter(deviceID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.CartAddRate)
				slog.Warn("rate limit exceeded",
					slog.String("device_id", deviceID),
					slog.String("limit_type", "cart_add"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// CartAddLimiterCount は現在管理されているカート追加リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) CartAddLimiterCount() int {
	rl.cartAddMu.RLock()
	defer rl.cartAddMu.RUnlock()
	return len(rl.cartAddLimiters)
}

// getOrCreateGeneralLimiter はデバイスのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(deviceID string) *rate.Limiter {
	rl.generalMu.RLock()
	dl, exists := rl.generalLimiters[deviceID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		dl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return dl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if dl, exists := rl.generalLimiters[deviceID]; exists {
		dl.lastAccess = time.Now()
		return dl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[deviceID] = &deviceLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateCartAddLimiter はデバイスのカート追加リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateCartAddLimiter(deviceID string) *rate.Limiter {
	rl.cartAddMu.RLock()
	dl, exists := rl.cartAddLimiters[deviceID]
	rl.cartAddMu.RUnlock()

	if exists {
		rl.cartAddMu.Lock()
		dl.lastAccess = time.Now()
		rl.cartAddMu.Unlock()
		return dl.limiter
	}

	rl.cartAddMu.Lock()
	defer rl.cartAddMu.Unlock()

	// ダブルチェック
	if dl, exists := rl.cartAddLimiters[deviceID]; exists {
		dl.lastAccess = time.Now()
		return dl.limiter
	}

	limiter := rate.NewLimiter(rl.config.CartAddRate, rl.config.CartAddBurst)
	rl.cartAddLimiters[deviceID] = &deviceLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for deviceID, dl := range rl.generalLimiters {
		if now.Sub(dl.lastAccess) > ttl {
			delete(rl.generalLimiters, deviceID)
		}
	}
	rl.generalMu.Unlock()

	rl.cartAddMu.Lock()
	for deviceID, dl := range rl.cartAddLimiters {
		if now.Sub(dl.lastAccess) > ttl {
			delete(rl.cartAddLimiters, deviceID)
		}
	}
	rl.cartAddMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
