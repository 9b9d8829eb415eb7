// Package sweep は進行中の対局を定期的に巡回するバックグラウンド処理を提供する。
// 時間切れと放置終局をシステムとして適用し、それ以外の対局は非正規化コピーを突き合わせる。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/hitoshi/banmen/internal/model"
)

// SessionSweeper は巡回対象の列挙と1対局分の巡回を行う。session.Serviceが実装する。
type SessionSweeper interface {
	ActiveSessions(ctx context.Context) ([]*model.Session, error)
	Sweep(ctx context.Context, id string) (string, error)
}

// ActionRecorder は巡回で適用した操作の記録先。metrics.MetricsCollectorの部分集合。
type ActionRecorder interface {
	RecordSweepAction(kind string)
}

// sweepFailed は巡回に失敗した対局を記録するときの種別。
const sweepFailed = "failed"

// Stats は1回の巡回サイクルの結果。
type Stats struct {
	Sessions int
	Actions  map[string]int
	Failed   int
}

// Scheduler は対局巡回のスケジューリングと並列制御を行う。
// gocronのジョブで一定間隔ごとにRunOnceを実行し、
// semaphoreパターンで最大並列数を制御する。
type Scheduler struct {
	sweeper        SessionSweeper
	recorder       ActionRecorder
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(sweeper SessionSweeper, recorder ActionRecorder, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sweeper:        sweeper,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はintervalごとに巡回を実行する。起動直後に1回実行する。
// 前回の巡回が終わっていない場合は次の実行を見送る。
// コンテキストがキャンセルされるまでブロックする。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("スケジューラの生成に失敗しました: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("巡回サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("巡回ジョブの登録に失敗しました: %w", err)
	}

	sched.Start()
	s.logger.Info("巡回スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("スケジューラの停止に失敗しました: %w", err)
	}
	s.logger.Info("巡回スケジューラを停止しました")
	return nil
}

// RunOnce は進行中の対局を1回列挙し、並列で巡回する。
// 個々の対局の失敗はログに記録して続行する。
func (s *Scheduler) RunOnce(ctx context.Context) (Stats, error) {
	start := time.Now()

	sessions, err := s.sweeper.ActiveSessions(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Sessions: len(sessions), Actions: make(map[string]int)}
	if len(sessions) == 0 {
		s.logger.Info("巡回対象の対局はありません")
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.maxConcurrency)
	)

	for _, sess := range sessions {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			kind, err := s.sweeper.Sweep(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				s.recorder.RecordSweepAction(sweepFailed)
				s.logger.Error("対局の巡回に失敗しました",
					slog.String("session_id", id),
					slog.String("step", kind),
					slog.String("error", err.Error()),
				)
				return
			}
			stats.Actions[kind]++
			s.recorder.RecordSweepAction(kind)
		}(sess.ID)
	}

	wg.Wait()

	s.logger.Info("巡回サイクルが完了しました",
		slog.Int("session_count", stats.Sessions),
		slog.Int("failed", stats.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return stats, nil
}
