package middleware

import (
	"context"
	"errors"
	"net/http"
)

// userIDHeaderName は認証ゲートウェイが検証済みユーザーIDを載せるヘッダー名。
// 本サービスは認証を行わず、前段のゲートウェイが設定したヘッダーを信頼する。
const userIDHeaderName = "X-User-ID"

type userContextKey struct{}

// ErrUserIDNotFound はコンテキストにユーザーIDが存在しないことを表す。
var ErrUserIDNotFound = errors.New("user ID not found in context")

// NewIdentityMiddleware はユーザー識別ミドルウェアを返す。
// X-User-IDヘッダーが存在する場合のみユーザーIDをコンテキストに載せる。
// ヘッダーがないリクエストはゲストとして通過させる。
func NewIdentityMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(userIDHeaderName)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserIDFromContext はコンテキストからユーザーIDを取り出す。
// ゲストリクエストではErrUserIDNotFoundを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	if !ok || userID == "" {
		return "", ErrUserIDNotFound
	}
	return userID, nil
}

// IsAuthenticated はリクエストが認証済みユーザーのものかを返す。
func IsAuthenticated(ctx context.Context) bool {
	_, err := UserIDFromContext(ctx)
	return err == nil
}
