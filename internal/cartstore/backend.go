// Package cartstore はゲストカートのローカル永続化を提供する。
// カートは「ストレージキー1つにつきシリアライズ済みの行リスト1つ」という
// キーバリュー形式で保存され、バックエンドは差し替え可能。
package cartstore

import (
	"context"
	"sync"
)

// Backend はカートペイロードのキーバリュー永続化インターフェース。
// 実装: PostgresBackend（本番）、MemoryBackend（テスト・ローカル実行）。
type Backend interface {
	// Get はキーに対応するペイロードを返す。キーが存在しない場合は found=false。
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Set はキーのペイロードを全置換で保存する。
	Set(ctx context.Context, key string, payload []byte) error
	// Delete はキーを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, key string) error
}

// MemoryBackend はメモリ上のBackend実装。
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend はMemoryBackendを生成する。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

// Get はキーに対応するペイロードを返す。
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	payload, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	// 呼び出し側での変更から保護するためコピーを返す
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, true, nil
}

// Set はキーのペイロードを保存する。
func (b *MemoryBackend) Set(ctx context.Context, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.data[key] = cp
	return nil
}

// Delete はキーを削除する。
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data, key)
	return nil
}

// compile-time interface check
var _ Backend = (*MemoryBackend)(nil)
