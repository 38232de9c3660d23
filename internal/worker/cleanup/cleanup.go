// Package cleanup は空になったゲストカート行の自動削除ジョブを提供する。
// 同期完了後のClearやすべての行の削除でペイロードが空になった行は
// 以降読み出されても空カートと等価なため、一定時間更新がなければ行ごと
// 削除してストレージを掃除する。中身のあるカートは期限切れにしない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は空のまま放置されたゲストカート行の自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db         Executor
	logger     *slog.Logger
	StaleHours int // 空行を削除対象とするまでの放置時間（デフォルト: 24）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの放置時間は24時間。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:         db,
		logger:     logger,
		StaleHours: 24,
	}
}

// Run はペイロードが空でStaleHours時間以上更新のない行を削除する。
// 中身のあるカートは対象にしない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d hours", j.StaleHours)

	query := `DELETE FROM guest_carts WHERE payload = '[]'::jsonb AND updated_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("ゲストカートクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("stale_hours", j.StaleHours),
		)
		return fmt.Errorf("ゲストカートクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("ゲストカートクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("stale_hours", j.StaleHours),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
