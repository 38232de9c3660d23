// Package model はドメインモデルを定義する。
package model

import "time"

// CartLineItem はゲストカートの1行を表す。
// (ProductID, ColorID) の組が行の複合キーとなり、同一キーへの追加は
// 数量の加算として扱われる。ColorID がnilの場合は「色未選択」を意味する。
type CartLineItem struct {
	ProductID int64      `json:"productId"`
	ColorID   *int64     `json:"colorId,omitempty"`
	Quantity  int        `json:"quantity"`
	AddedAt   *time.Time `json:"addedAt,omitempty"` // 初回追加時刻（参考情報、順序保証には使わない）
}

// SameKey は2つの行が同じ (ProductID, ColorID) キーを持つかを判定する。
func (i CartLineItem) SameKey(other CartLineItem) bool {
	if i.ProductID != other.ProductID {
		return false
	}
	if i.ColorID == nil || other.ColorID == nil {
		return i.ColorID == nil && other.ColorID == nil
	}
	return *i.ColorID == *other.ColorID
}

// TotalQuantity はカート内の全行の数量合計を返す。
func TotalQuantity(items []CartLineItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// Suggestion は商品サジェストの1件を表す。
// 上流コマースAPIの検索レスポンスから変換される。
type Suggestion struct {
	Slug  string  `json:"slug"`
	Name  string  `json:"name"`
	Image string  `json:"image,omitempty"`
	Price float64 `json:"price"`
}
