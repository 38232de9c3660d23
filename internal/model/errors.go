// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeMissingProduct      = "MISSING_PRODUCT"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeCartAddRejected     = "CART_ADD_REJECTED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewMissingProductError は商品IDが未指定の場合のエラーを生成する。
func NewMissingProductError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingProduct,
		Message:  "商品情報が不正です。商品IDが指定されていません。",
		Category: "validation",
		Action:   "商品を選択し直してください。",
	}
}

// NewInvalidQuantityError は数量が正の整数でない場合のエラーを生成する。
func NewInvalidQuantityError(quantity int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  fmt.Sprintf("数量が不正です: %d。数量は1以上を指定してください。", quantity),
		Category: "validation",
		Action:   "数量を1以上に設定してください。",
	}
}

// NewUnauthorizedError は認証が必要な操作に未認証でアクセスした場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewCartAddRejectedError は上流カートサービスが追加を拒否した場合のエラーを生成する。
// messageが空の場合は汎用メッセージにフォールバックする。
func NewCartAddRejectedError(message string) *APIError {
	if message == "" {
		message = "カートへの追加に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeCartAddRejected,
		Message:  message,
		Category: "cart",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamUnavailableError は上流カートサービスに到達できない場合のエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "カートサービスに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
