// Package cart はカートの追加・同期・バッジ計算のユースケースを提供する。
// ゲストのカートはデバイス単位のローカルストアに、認証済みユーザーのカートは
// 上流コマースAPIに置かれ、本パッケージが両者の使い分けと合流を担う。
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hitoshi/cartsync/internal/badge"
	"github.com/hitoshi/cartsync/internal/cartstore"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/upstream"
)

// UpstreamClient は上流コマースAPIのカート操作インターフェース。
type UpstreamClient interface {
	SyncCart(ctx context.Context, userID string, items []model.CartLineItem) (*upstream.SyncResponse, error)
	CartCount(ctx context.Context, userID string) (int, error)
	AddItem(ctx context.Context, userID string, item model.CartLineItem) (*upstream.AddResponse, error)
}

// Service はカートユースケースの実装。
type Service struct {
	store    *cartstore.Store
	upstream UpstreamClient
	renderer badge.Renderer
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	nudges   *NudgeCoordinator
}

// NewService はServiceの新しいインスタンスを生成する。
// rendererがnilの場合はバッジ状態の反映を行わない。
func NewService(store *cartstore.Store, upstreamClient UpstreamClient, renderer badge.Renderer, collector metrics.MetricsCollector, logger *slog.Logger, nudges *NudgeCoordinator) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		store:    store,
		upstream: upstreamClient,
		renderer: renderer,
		metrics:  collector,
		logger:   logger,
		nudges:   nudges,
	}
}

// AddResult はカート追加の結果。
// ゲスト追加ではItemsにローカルカート全体が入り、認証済み追加では
// Cartに上流のサーバーカート表現が入る。
type AddResult struct {
	Items   []model.CartLineItem
	Cart    json.RawMessage
	Badge   badge.State
	Message string
}

// AddItem はカートへ商品を追加する。
// 入力検証に失敗した場合はストレージにも上流にも触れずにエラーを返す。
// 認証済みユーザーは上流カートへ、ゲストはローカルカートへ追加される。
func (s *Service) AddItem(ctx context.Context, deviceID, userID string, authenticated bool, productID int64, colorID *int64, quantity int) (*AddResult, error) {
	if productID <= 0 {
		return nil, model.NewMissingProductError()
	}
	if quantity <= 0 {
		return nil, model.NewInvalidQuantityError(quantity)
	}

	item := model.CartLineItem{ProductID: productID, ColorID: colorID, Quantity: quantity}

	if authenticated {
		return s.addAuthenticated(ctx, userID, item)
	}
	return s.addGuest(ctx, deviceID, item), nil
}

// addAuthenticated は認証済みユーザーのカート追加を行う。
// 上流の拒否は上流メッセージを保持したAPIErrorとして呼び出し元へ伝播する。
func (s *Service) addAuthenticated(ctx context.Context, userID string, item model.CartLineItem) (*AddResult, error) {
	resp, err := s.upstream.AddItem(ctx, userID, item)
	if err != nil {
		var rejected *upstream.AddRejectedError
		if errors.As(err, &rejected) {
			s.logger.Warn("上流がカート追加を拒否しました",
				slog.String("user_id", userID),
				slog.Int("status", rejected.StatusCode),
			)
			return nil, model.NewCartAddRejectedError(rejected.Message)
		}
		s.logger.Error("上流へのカート追加に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError()
	}

	state := badge.Compute(s.RemoteCount(ctx, userID))
	s.render(state)

	return &AddResult{
		Cart:    resp.Cart,
		Badge:   state,
		Message: resp.Message,
	}, nil
}

// addGuest はゲストのカート追加を行う。
// ローカルストアの障害は縮退扱いで、追加結果は常に返る。
func (s *Service) addGuest(ctx context.Context, deviceID string, item model.CartLineItem) *AddResult {
	items := s.store.AddItem(ctx, deviceID, item.ProductID, item.ColorID, item.Quantity)
	s.metrics.RecordLocalAdd()

	state := badge.Compute(model.TotalQuantity(items))
	s.render(state)

	if s.nudges != nil {
		s.nudges.NoteGuestAdd(deviceID)
	}

	return &AddResult{
		Items:   items,
		Badge:   state,
		Message: "カートに追加しました",
	}
}

// SyncResult はカート同期の結果。
// Syncedがfalseの場合、ローカルカートは消去されずに保持されている。
type SyncResult struct {
	Synced  bool
	Cart    json.RawMessage
	Badge   badge.State
	Message string
}

// Sync はログイン直後にローカルカートを上流カートへ合流させる。
// ローカルカートが空の場合は上流を呼ばずに即座に完了する。
// 上流呼び出しの失敗は同期見送りとして扱い、エラーにはしない。
// ローカルカートの消去は上流が成功を返した後にのみ行う。
func (s *Service) Sync(ctx context.Context, deviceID, userID string) (*SyncResult, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	// 空のローカルカートに合流は不要。上流も呼ばない
	items := s.store.Read(ctx, deviceID)
	if len(items) == 0 {
		return &SyncResult{Synced: true, Badge: badge.Compute(0)}, nil
	}

	resp, err := s.upstream.SyncCart(ctx, userID, items)
	if err != nil {
		s.logger.Warn("カート同期に失敗したためローカルカートを保持します",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordSyncFailure("upstream_error")
		return s.unsyncedResult(ctx, deviceID), nil
	}
	if !resp.Success {
		s.logger.Warn("上流がカート同期を受け付けなかったためローカルカートを保持します",
			slog.String("user_id", userID),
			slog.String("message", resp.Message),
		)
		s.metrics.RecordSyncFailure("rejected")
		return s.unsyncedResult(ctx, deviceID), nil
	}

	s.store.Clear(ctx, deviceID)
	if s.nudges != nil {
		s.nudges.CancelPending(deviceID)
	}
	s.metrics.RecordSyncSuccess()

	state := badge.Compute(s.RemoteCount(ctx, userID))
	s.render(state)

	return &SyncResult{
		Synced:  true,
		Cart:    resp.Cart,
		Badge:   state,
		Message: resp.Message,
	}, nil
}

// unsyncedResult は同期見送り時の結果を組み立てる。バッジはローカル件数を反映する。
func (s *Service) unsyncedResult(ctx context.Context, deviceID string) *SyncResult {
	state := badge.Compute(s.store.TotalQuantity(ctx, deviceID))
	s.render(state)
	return &SyncResult{Synced: false, Badge: state}
}

// RemoteCount は上流カートの件数を返す。取得失敗は0件に縮退する。
func (s *Service) RemoteCount(ctx context.Context, userID string) int {
	count, err := s.upstream.CartCount(ctx, userID)
	if err != nil {
		s.logger.Warn("上流カート件数の取得に失敗したため0件として扱います",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return count
}

// LocalCount はローカルカートの数量合計を返す。
func (s *Service) LocalCount(ctx context.Context, deviceID string) int {
	return s.store.TotalQuantity(ctx, deviceID)
}

// BadgeStatus は現在のバッジ状態とログイン案内の有無。
type BadgeStatus struct {
	Badge      badge.State
	LoginNudge bool
}

// Badge は現在のカートバッジ状態を返す。
// 認証済みユーザーは上流件数、ゲストはローカル件数から計算する。
// ゲストに対しては提示待ちのログイン案内があれば1回だけ載せる。
func (s *Service) Badge(ctx context.Context, deviceID, userID string, authenticated bool) BadgeStatus {
	var state badge.State
	loginNudge := false

	if authenticated {
		state = badge.Compute(s.RemoteCount(ctx, userID))
	} else {
		state = badge.Compute(s.store.TotalQuantity(ctx, deviceID))
		if s.nudges != nil {
			loginNudge = s.nudges.Consume(deviceID)
		}
	}

	s.render(state)
	return BadgeStatus{Badge: state, LoginNudge: loginNudge}
}

func (s *Service) render(state badge.State) {
	if s.renderer != nil {
		s.renderer.Render(state)
	}
}
