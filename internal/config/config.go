package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Upstream（上流コマースAPI）
	UpstreamBaseURL         string
	UpstreamTimeout         time.Duration
	UpstreamMaxResponseSize int64

	// Rate Limit（デバイス単位、req/min）
	RateLimitGeneral int
	RateLimitCartAdd int

	// Cart
	LoginNudgeDelay      time.Duration // ゲスト追加後、ログイン促しを出すまでの遅延
	SuggestDebounce      time.Duration // サジェスト検索のデバウンス間隔
	SuggestMaxKeywordLen int           // サジェストキーワードの最大長

	// Worker
	JanitorInterval time.Duration // 空カート行の掃除間隔

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure       bool
	CookieDomain       string
	DeviceCookieMaxAge int

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.UpstreamBaseURL = os.Getenv("UPSTREAM_BASE_URL")
	if cfg.UpstreamBaseURL == "" {
		missing = append(missing, "UPSTREAM_BASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.UpstreamMaxResponseSize = getEnvInt64("UPSTREAM_MAX_RESPONSE_SIZE", 1048576)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCartAdd = getEnvInt("RATE_LIMIT_CART_ADD", 30)
	cfg.LoginNudgeDelay = getEnvDuration("LOGIN_NUDGE_DELAY", 1*time.Second)
	cfg.SuggestDebounce = getEnvDuration("SUGGEST_DEBOUNCE", 200*time.Millisecond)
	cfg.SuggestMaxKeywordLen = getEnvInt("SUGGEST_MAX_KEYWORD_LEN", 100)
	cfg.JanitorInterval = getEnvDuration("JANITOR_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.DeviceCookieMaxAge = getEnvInt("DEVICE_COOKIE_MAX_AGE", 31536000)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
