package cart

import (
	"sync"
	"time"

	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/sched"
)

// NudgeCoordinator はゲスト追加後のログイン案内を管理する。
// 案内はゲスト追加から一定の遅延の後に提示可能となり、デバイスごとに最大1回だけ提示される。
// 遅延中に追加が繰り返された場合は最後の追加からの遅延で計り直す。
// 状態はプロセス内メモリに保持され、再起動でリセットされる。
type NudgeCoordinator struct {
	delay   time.Duration
	metrics metrics.MetricsCollector

	mu      sync.Mutex
	slots   map[string]*sched.Slot
	ready   map[string]bool
	offered map[string]bool
}

// NewNudgeCoordinator はNudgeCoordinatorの新しいインスタンスを生成する。
func NewNudgeCoordinator(delay time.Duration, collector metrics.MetricsCollector) *NudgeCoordinator {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &NudgeCoordinator{
		delay:   delay,
		metrics: collector,
		slots:   make(map[string]*sched.Slot),
		ready:   make(map[string]bool),
		offered: make(map[string]bool),
	}
}

// NoteGuestAdd はゲスト追加を記録し、遅延後の案内提示を予約する。
// 既に案内済みのデバイスでは何もしない。
func (n *NudgeCoordinator) NoteGuestAdd(deviceID string) {
	n.mu.Lock()
	if n.offered[deviceID] {
		n.mu.Unlock()
		return
	}
	slot, ok := n.slots[deviceID]
	if !ok {
		slot = &sched.Slot{}
		n.slots[deviceID] = slot
	}
	n.mu.Unlock()

	slot.Schedule(n.delay, func() {
		n.markReady(deviceID)
	})
}

// markReady はデバイスを案内提示待ちにする。
func (n *NudgeCoordinator) markReady(deviceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.offered[deviceID] {
		return
	}
	n.ready[deviceID] = true
	delete(n.slots, deviceID)
}

// Consume は提示待ちの案内があれば取り出す。
// trueを返した後は同じデバイスに二度と案内しない。
func (n *NudgeCoordinator) Consume(deviceID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.ready[deviceID] {
		return false
	}
	delete(n.ready, deviceID)
	n.offered[deviceID] = true
	n.metrics.RecordNudgeOffered()
	return true
}

// CancelPending は保留中の案内予約と提示待ちを破棄する。
// ログインによる同期完了後に呼び出され、以後このデバイスには案内しない。
func (n *NudgeCoordinator) CancelPending(deviceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if slot, ok := n.slots[deviceID]; ok {
		slot.Cancel()
		delete(n.slots, deviceID)
	}
	delete(n.ready, deviceID)
	n.offered[deviceID] = true
}
