package cartstore

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresBackend はPostgreSQLのguest_cartsテーブルを使用したBackend実装。
// 1キー1行で、ペイロード全体をJSONBカラムに置換保存する。
// 同一キーへの並行書き込みは行単位のUPSERTによりlast-write-winsとなる。
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend はPostgresBackendを生成する。
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Get はキーに対応するペイロードを返す。キーが存在しない場合は found=false。
func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM guest_carts WHERE storage_key = $1`,
		key,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cart payload: %w", err)
	}

	return payload, true, nil
}

// Set はキーのペイロードをUPSERTで全置換する。
func (b *PostgresBackend) Set(ctx context.Context, key string, payload []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO guest_carts (storage_key, payload, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (storage_key)
		 DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to set cart payload: %w", err)
	}
	return nil
}

// Delete はキーを削除する。存在しないキーの削除はエラーにならない。
func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM guest_carts WHERE storage_key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart payload: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Backend = (*PostgresBackend)(nil)
