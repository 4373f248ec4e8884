// Package cleanup は分析イベントの保持期間管理ジョブを提供する。
// 保持期間（デフォルト90日）を超過したanalytics_eventsを日次で削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は分析イベントの保持日数のデフォルト値。
const DefaultRetentionDays = 90

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventCleanupJob は保持期間を超過した分析イベントの削除ジョブ。
type EventCleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
	Interval      time.Duration
}

// NewEventCleanupJob は新しいEventCleanupJobを生成する。
// retentionDaysが0以下の場合はデフォルト値を使用する。
func NewEventCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *EventCleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &EventCleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
		Interval:      DefaultInterval,
	}
}

// Run は保持期間を超過したイベントを削除する。
// 削除対象がない場合もエラーにならない。
func (j *EventCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM analytics_events WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("分析イベントのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("分析イベントのクリーンアップに失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("分析イベントのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後Interval毎にRunを実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行失敗はログに記録して次回に持ち越す。
func (j *EventCleanupJob) Start(ctx context.Context) {
	j.runOnce(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("分析イベントのクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *EventCleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("次回の実行で再試行します", slog.Duration("interval", j.Interval))
	}
}
