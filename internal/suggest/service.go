// Package suggest は検索ボックス向けの商品サジェスト機能を提供する。
package suggest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/security"
)

// ErrSuperseded は同一ターゲットへのより新しい検索に置き換えられたことを表す。
var ErrSuperseded = errors.New("suggest: superseded by a newer lookup")

// SuggestionFetcher は上流からのサジェスト取得インターフェース。
type SuggestionFetcher interface {
	Suggestions(ctx context.Context, keyword string) ([]model.Suggestion, error)
}

// Service は商品サジェストの取得と無害化を行う。
// 取得失敗は空リストに縮退し、エラーを呼び出し元へ伝播しない。
type Service struct {
	fetcher       SuggestionFetcher
	sanitizer     security.SuggestionSanitizerService
	logger        *slog.Logger
	maxKeywordLen int
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(fetcher SuggestionFetcher, sanitizer security.SuggestionSanitizerService, logger *slog.Logger, maxKeywordLen int) *Service {
	return &Service{
		fetcher:       fetcher,
		sanitizer:     sanitizer,
		logger:        logger,
		maxKeywordLen: maxKeywordLen,
	}
}

// Lookup はキーワードに対するサジェスト一覧を返す。
// 空白のみのキーワードには上流呼び出しなしで空リストを返す。
// キーワードは最大長で切り詰め、取得結果は全フィールドを無害化して返す。
func (s *Service) Lookup(ctx context.Context, keyword string) []model.Suggestion {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []model.Suggestion{}
	}

	if runes := []rune(keyword); len(runes) > s.maxKeywordLen {
		keyword = string(runes[:s.maxKeywordLen])
	}

	suggestions, err := s.fetcher.Suggestions(ctx, keyword)
	if err != nil {
		s.logger.Warn("サジェストの取得に失敗したため空リストに縮退します",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return []model.Suggestion{}
	}

	sanitized := make([]model.Suggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		name := s.sanitizer.SanitizeText(sg.Name)
		if name == "" {
			continue
		}
		sanitized = append(sanitized, model.Suggestion{
			Slug:  s.sanitizer.SanitizeText(sg.Slug),
			Name:  name,
			Image: s.sanitizer.SanitizeImageURL(sg.Image),
			Price: sg.Price,
		})
	}

	return sanitized
}

// Debouncer は同一ターゲットへの連続検索を抑制する。
// 遅延時間の経過前に同じターゲットで新しい検索が届いた場合、
// 先行する呼び出しはErrSupersededで終了し、最後の検索だけが上流へ到達する。
type Debouncer struct {
	service *Service
	delay   time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewDebouncer はDebouncerの新しいインスタンスを生成する。
func NewDebouncer(service *Service, delay time.Duration) *Debouncer {
	return &Debouncer{
		service: service,
		delay:   delay,
		pending: make(map[string]chan struct{}),
	}
}

// Lookup は遅延時間の経過後にサジェストを取得する。
// targetは検索ボックスの識別子で、デバウンスの単位となる。
// 遅延中に同一ターゲットの新しい呼び出しで置き換えられた場合はErrSupersededを返す。
func (d *Debouncer) Lookup(ctx context.Context, target, keyword string) ([]model.Suggestion, error) {
	d.mu.Lock()
	if prev, ok := d.pending[target]; ok {
		close(prev)
	}
	ch := make(chan struct{})
	d.pending[target] = ch
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-ch:
		return nil, ErrSuperseded
	case <-ctx.Done():
		d.release(target, ch)
		return nil, ctx.Err()
	case <-timer.C:
	}

	d.mu.Lock()
	// タイマー発火とほぼ同時に置き換えられた場合も新しい方を優先する
	select {
	case <-ch:
		d.mu.Unlock()
		return nil, ErrSuperseded
	default:
	}
	if d.pending[target] == ch {
		delete(d.pending, target)
	}
	d.mu.Unlock()

	return d.service.Lookup(ctx, keyword), nil
}

// release は自分が最新の保留である場合にのみエントリを取り除く。
func (d *Debouncer) release(target string, ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[target] == ch {
		delete(d.pending, target)
	}
}
