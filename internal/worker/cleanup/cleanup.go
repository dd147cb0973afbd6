// Package cleanup は期限切れチケットの自動削除ジョブを提供する。
// expiresを過ぎたチケットを日次バッチで削除する。失効済みチケットは
// ミドルウェアの検証でも拒否されるため、このジョブは遅延しても
// 安全性に影響しない。
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

// PurgeRecorder は削除件数のメトリクス記録のインターフェース。
// nilの場合は記録しない。
type PurgeRecorder interface {
	RecordTicketsPurged(count int)
}

// CleanupJob は期限切れチケットの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder PurgeRecorder

	// GracePeriod は期限切れ後も行を残す猶予期間。
	// 失効直後の調査やデバッグのために短い猶予を置く（デフォルト: 24時間）。
	GracePeriod time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, recorder PurgeRecorder) *CleanupJob {
	return &CleanupJob{
		db:          db,
		logger:      logger,
		recorder:    recorder,
		GracePeriod: 24 * time.Hour,
	}
}

// Run は期限切れチケットを削除する。
// expiresがGracePeriod前より古いチケットをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := start.Add(-j.GracePeriod)

	query := `DELETE FROM tickets WHERE expires < $1`
	result, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		j.logger.Error("ticket cleanup job failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to purge expired tickets: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read purged row count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to read purged row count: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordTicketsPurged(int(deletedCount))
	}

	duration := time.Since(start)
	j.logger.Info("ticket cleanup job completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
