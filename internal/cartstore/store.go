package cartstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
)

// storageKeyPrefix はデバイスIDからストレージキーを導出する際のプレフィックス。
const storageKeyPrefix = "cart:"

// Store はデバイス単位のゲストカートを読み書きする。
// 読み取り失敗・破損データは空カートに縮退し、書き込み失敗は握りつぶして
// ログのみ残す。いずれも呼び出し元の処理を中断させない。
// 同一デバイスへの並行read-modify-writeはロックせず、ストレージ層の
// last-write-winsに委ねる（最悪ケースは加算1回分の消失）。
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time // テスト用に差し替え可能
}

// NewStore はStoreを生成する。
func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Read は現在永続化されているカートを返す。
// キーが存在しない、読み取りに失敗した、ペイロードが破損している、の
// いずれの場合も空カートを返し、エラーは呼び出し元に伝播しない。
func (s *Store) Read(ctx context.Context, deviceID string) []model.CartLineItem {
	payload, found, err := s.backend.Get(ctx, storageKey(deviceID))
	if err != nil {
		s.logger.Error("ゲストカートの読み取りに失敗しました",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !found {
		return nil
	}

	var items []model.CartLineItem
	if err := json.Unmarshal(payload, &items); err != nil {
		s.logger.Error("ゲストカートのペイロードが破損しています",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return items
}

// Write はカート全体を永続化する。
// 書き込み失敗はログに残すのみで、呼び出し元のフローを中断しない。
func (s *Store) Write(ctx context.Context, deviceID string, items []model.CartLineItem) {
	if items == nil {
		items = []model.CartLineItem{}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		s.logger.Error("ゲストカートのシリアライズに失敗しました",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.backend.Set(ctx, storageKey(deviceID), payload); err != nil {
		s.logger.Error("ゲストカートの書き込みに失敗しました",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
	}
}

// AddItem は (productID, colorID) キーで既存行を検索し、
// 見つかれば数量を加算、なければAddedAtを現在時刻として新規行を追加する。
// 常に結果を永続化し、更新後のカートを返す。入力の妥当性検証は呼び出し元の責務。
func (s *Store) AddItem(ctx context.Context, deviceID string, productID int64, colorID *int64, quantity int) []model.CartLineItem {
	items := s.Read(ctx, deviceID)

	key := model.CartLineItem{ProductID: productID, ColorID: colorID}
	merged := false
	for i := range items {
		if items[i].SameKey(key) {
			items[i].Quantity += quantity
			merged = true
			break
		}
	}

	if !merged {
		addedAt := s.now().UTC()
		items = append(items, model.CartLineItem{
			ProductID: productID,
			ColorID:   colorID,
			Quantity:  quantity,
			AddedAt:   &addedAt,
		})
	}

	s.Write(ctx, deviceID, items)
	return items
}

// TotalQuantity は全行の数量合計を返す。空・読み取り不能なカートは0。
func (s *Store) TotalQuantity(ctx context.Context, deviceID string) int {
	return model.TotalQuantity(s.Read(ctx, deviceID))
}

// Clear はデバイスのカートを破棄する。同期成功直後に1回だけ呼ばれる。
// 削除失敗はログに残すのみ。
func (s *Store) Clear(ctx context.Context, deviceID string) {
	if err := s.backend.Delete(ctx, storageKey(deviceID)); err != nil {
		s.logger.Error("ゲストカートの削除に失敗しました",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
	}
}

func storageKey(deviceID string) string {
	return storageKeyPrefix + deviceID
}
