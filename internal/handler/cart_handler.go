// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cartsync/internal/badge"
	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	// AddItem はカートへ商品を追加する。
	AddItem(ctx context.Context, deviceID, userID string, authenticated bool, productID int64, colorID *int64, quantity int) (*cart.AddResult, error)
	// Sync はローカルカートを上流カートへ合流させる。
	Sync(ctx context.Context, deviceID, userID string) (*cart.SyncResult, error)
	// Badge は現在のバッジ状態とログイン案内を返す。
	Badge(ctx context.Context, deviceID, userID string, authenticated bool) cart.BadgeStatus
	// RemoteCount は上流カートの件数を返す。
	RemoteCount(ctx context.Context, userID string) int
	// LocalCount はローカルカートの数量合計を返す。
	LocalCount(ctx context.Context, deviceID string) int
}

// CartHandler はカート操作のHTTPハンドラー。
type CartHandler struct {
	service CartServiceInterface
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface) *CartHandler {
	return &CartHandler{service: service}
}

// addItemRequest はカート追加リクエストのボディ。
type addItemRequest struct {
	ProductID int64  `json:"productId"`
	ColorID   *int64 `json:"colorId"`
	Quantity  int    `json:"quantity"`
}

// badgeResponse はバッジ状態のAPIレスポンス。
type badgeResponse struct {
	Count   int    `json:"count"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// addItemResponse はカート追加のAPIレスポンス。
// ゲスト追加ではitemsに、認証済み追加ではcartに結果が入る。
type addItemResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Items   []model.CartLineItem `json:"items,omitempty"`
	Cart    json.RawMessage      `json:"cart,omitempty"`
	Badge   badgeResponse        `json:"badge"`
}

// syncResponse はカート同期のAPIレスポンス。
type syncResponse struct {
	Synced  bool            `json:"synced"`
	Message string          `json:"message,omitempty"`
	Cart    json.RawMessage `json:"cart,omitempty"`
	Badge   badgeResponse   `json:"badge"`
}

// countResponse はカート件数のAPIレスポンス。
type countResponse struct {
	Count int `json:"count"`
}

// badgeStatusResponse はバッジ取得のAPIレスポンス。
type badgeStatusResponse struct {
	Badge      badgeResponse `json:"badge"`
	LoginNudge bool          `json:"loginNudge"`
}

// AddItem はカートへの商品追加を処理する。
// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	authenticated := middleware.IsAuthenticated(r.Context())
	userID, _ := middleware.UserIDFromContext(r.Context())

	result, err := h.service.AddItem(r.Context(), deviceID, userID, authenticated, req.ProductID, req.ColorID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(addItemResponse{
		Success: true,
		Message: result.Message,
		Items:   result.Items,
		Cart:    result.Cart,
		Badge:   toBadgeResponse(result.Badge),
	})
}

// Sync はローカルカートと上流カートの合流を処理する。
// POST /api/cart/sync
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	result, err := h.service.Sync(r.Context(), deviceID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncResponse{
		Synced:  result.Synced,
		Message: result.Message,
		Cart:    result.Cart,
		Badge:   toBadgeResponse(result.Badge),
	})
}

// Count はカート件数を返す。
// GET /api/cart/count
// 認証済みユーザーは上流件数、ゲストはローカル件数。
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	var count int
	if middleware.IsAuthenticated(r.Context()) {
		userID, _ := middleware.UserIDFromContext(r.Context())
		count = h.service.RemoteCount(r.Context(), userID)
	} else {
		count = h.service.LocalCount(r.Context(), deviceID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countResponse{Count: count})
}

// Badge は現在のバッジ状態を返す。
// GET /api/cart/badge
// ゲストに提示待ちのログイン案内がある場合、このレスポンスで1回だけ届く。
func (h *CartHandler) Badge(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	authenticated := middleware.IsAuthenticated(r.Context())
	userID, _ := middleware.UserIDFromContext(r.Context())

	status := h.service.Badge(r.Context(), deviceID, userID, authenticated)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(badgeStatusResponse{
		Badge:      toBadgeResponse(status.Badge),
		LoginNudge: status.LoginNudge,
	})
}

// --- ヘルパー関数 ---

// toBadgeResponse はbadge.StateからAPIレスポンスに変換する。
func toBadgeResponse(state badge.State) badgeResponse {
	return badgeResponse{
		Count:   state.Count,
		Text:    state.Text,
		Visible: state.Visible,
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeMissingProduct, model.ErrCodeInvalidQuantity:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeCartAddRejected:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
