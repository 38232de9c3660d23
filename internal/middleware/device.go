package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// deviceCookieName はデバイスIDを保持するCookieの名前。
const deviceCookieName = "cartsync_device"

type deviceContextKey struct{}

// ErrDeviceIDNotFound はコンテキストにデバイスIDが存在しないことを表す。
var ErrDeviceIDNotFound = errors.New("device ID not found in context")

// DeviceConfig はデバイス識別ミドルウェアの設定。
type DeviceConfig struct {
	CookieSecure bool
	CookieDomain string
	CookieMaxAge int
}

// NewDeviceMiddleware はデバイス識別ミドルウェアを返す。
// デバイスCookieが存在すればその値を、なければUUIDを新規発行してCookieに設定し、
// いずれの場合もデバイスIDをリクエストコンテキストに載せる。
// ゲストカートはこのIDをキーに保存されるため、全ルートで最初に適用する。
func NewDeviceMiddleware(config DeviceConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""
			if cookie, err := r.Cookie(deviceCookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					deviceID = cookie.Value
				}
			}

			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     deviceCookieName,
					Value:    deviceID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.CookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), deviceContextKey{}, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithDeviceID はコンテキストにデバイスIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, deviceID)
}

// DeviceIDFromContext はコンテキストからデバイスIDを取り出す。
func DeviceIDFromContext(ctx context.Context) (string, error) {
	deviceID, ok := ctx.Value(deviceContextKey{}).(string)
	if !ok || deviceID == "" {
		return "", ErrDeviceIDNotFound
	}
	return deviceID, nil
}
