// Package cleanup はプレイヤーの最終アクセス記録の自動削除ジョブを提供する。
// 保持期間（デフォルト180日）を超過した記録を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PresencePurger は最終アクセス記録の一括削除を抽象化するインターフェース。
// repository.KVPresenceRepoが実装する。
type PresencePurger interface {
	PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CleanupJob は保持期間を超過した最終アクセス記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	presence      PresencePurger
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 記録の保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。
func NewCleanupJob(presence PresencePurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		presence:      presence,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 180,
	}
}

// Run は保持期間を超過した最終アクセス記録を削除する。
// 記録が消えたプレイヤーは放置判定で最近アクセスしていない扱いになるため、
// 保持期間は放置判定の閾値より長くすること。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.presence.PurgeSeenBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("最終アクセス記録のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("最終アクセス記録のクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("最終アクセス記録のクリーンアップが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
