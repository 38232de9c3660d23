// Package sched は単一占有の遅延実行スロットを提供する。
// 同一スロットへの再スケジュールは保留中の実行を破棄して置き換える。
package sched

import (
	"sync"
	"time"
)

// Slot は最大1件の保留実行を持つ遅延実行スロット。
// ゼロ値で使用可能。
type Slot struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Schedule は遅延時間経過後にfnを実行する。
// 保留中の実行がある場合はキャンセルして置き換える（最後の予約が勝つ）。
// fnは専用のゴルーチンで実行される。
func (s *Slot) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen

	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// 発火までの間に置き換え・キャンセルされていれば実行しない
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel は保留中の実行を破棄する。保留がなければ何もしない。
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Pending は保留中の実行があるかを返す。
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
