package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/suggest"
)

// SuggestLookupInterface はサジェストハンドラーが必要とするインターフェース。
type SuggestLookupInterface interface {
	// Lookup はデバウンス後にキーワードのサジェスト一覧を返す。
	Lookup(ctx context.Context, target, keyword string) ([]model.Suggestion, error)
}

// SuggestHandler は商品サジェストのHTTPハンドラー。
type SuggestHandler struct {
	lookup SuggestLookupInterface
}

// NewSuggestHandler はSuggestHandlerを生成する。
func NewSuggestHandler(lookup SuggestLookupInterface) *SuggestHandler {
	return &SuggestHandler{lookup: lookup}
}

// suggestionsResponse はサジェスト取得のAPIレスポンス。
type suggestionsResponse struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// Suggestions は検索キーワードに対する商品サジェストを返す。
// GET /api/suggestions?keyword=
// デバイス単位でデバウンスされ、より新しい検索に置き換えられた呼び出しは
// 空リストを返して終了する。
func (h *SuggestHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	keyword := r.URL.Query().Get("keyword")

	suggestions, err := h.lookup.Lookup(r.Context(), deviceID, keyword)
	if err != nil {
		if errors.Is(err, suggest.ErrSuperseded) || errors.Is(err, context.Canceled) {
			suggestions = []model.Suggestion{}
		} else {
			handleServiceError(w, err)
			return
		}
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(suggestionsResponse{Suggestions: suggestions})
}
