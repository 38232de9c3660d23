// Package badge はカートバッジの表示状態を提供する。
// 件数から表示テキストと可視性を導出し、描画先への反映を抽象化する。
package badge

import (
	"strconv"
	"sync"
)

// displayCap はバッジに数値表示する上限。超過分は「99+」に丸める。
const displayCap = 99

// State はバッジの表示状態。
type State struct {
	Count   int    `json:"count"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// Compute は件数からバッジの表示状態を導出する。
// 0以下の件数は0件・非表示として扱う。
func Compute(count int) State {
	if count <= 0 {
		return State{Count: 0, Text: "", Visible: false}
	}
	text := strconv.Itoa(count)
	if count > displayCap {
		text = "99+"
	}
	return State{Count: count, Text: text, Visible: true}
}

// Renderer はバッジ状態の反映先を抽象化するインターフェース。
type Renderer interface {
	// Render はバッジ状態を反映する。同一状態の再適用は冪等であること。
	Render(state State)
}

// StateRenderer は最後に反映された状態を保持するRenderer。
// レスポンス組み立て時に現在のバッジ状態を参照するために使用する。
type StateRenderer struct {
	mu    sync.RWMutex
	state State
}

// NewStateRenderer はStateRendererの新しいインスタンスを生成する。
// 初期状態は0件・非表示。
func NewStateRenderer() *StateRenderer {
	return &StateRenderer{state: Compute(0)}
}

// Render はバッジ状態を保持する。
func (r *StateRenderer) Render(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// State は最後に反映されたバッジ状態を返す。
func (r *StateRenderer) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// compile-time interface check
var _ Renderer = (*StateRenderer)(nil)
