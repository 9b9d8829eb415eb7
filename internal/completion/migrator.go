// Package completion は終局した対局を終局済み領域へ移し、後続のフックを呼び出す。
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/repository"
)

// Completed はフックに渡す終局の通知内容。
type Completed struct {
	SessionID    string
	GameType     string
	Participants []string
	Winners      []int
	TournamentID string
	EventID      string
	CompletedAt  time.Time
	// Session は終局時点の正本。フックは変更してはならない。
	Session *model.Session
}

// Hook は対局の終局を受け取る外部連携。
type Hook interface {
	OnSessionCompleted(ctx context.Context, c Completed) error
}

// HookFunc は関数をHookとして扱うためのアダプタ。
type HookFunc func(ctx context.Context, c Completed) error

// OnSessionCompleted はfを呼び出す。
func (f HookFunc) OnSessionCompleted(ctx context.Context, c Completed) error {
	return f(ctx, c)
}

// Indexer は終局済み対局の索引を書き込む。
type Indexer interface {
	IndexCompleted(ctx context.Context, s *model.Session) error
}

// HookObserver はフックの失敗を観測する。
type HookObserver interface {
	RecordHookFailure(hook string)
}

// NamedHook は名前付きのHook。ログとメトリクスのラベルに名前を使う。
type NamedHook struct {
	Name string
	Hook Hook
}

// Migrator は終局した対局を進行中領域から終局済み領域へ移す。
type Migrator struct {
	sessions repository.SessionRepository
	indexer  Indexer
	hooks    []NamedHook
	observer HookObserver
	logger   *slog.Logger
}

// NewMigrator はMigratorを生成する。loggerがnilの場合はslog.Default()を使う。
func NewMigrator(sessions repository.SessionRepository, indexer Indexer, logger *slog.Logger, hooks ...NamedHook) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{sessions: sessions, indexer: indexer, hooks: hooks, logger: logger}
}

// SetObserver はフック失敗の観測先を設定する。
func (m *Migrator) SetObserver(o HookObserver) {
	m.observer = o
}

// Migrate は終局済みの正本を書き込み、進行中の正本を削除し、索引を書き込む。
// 終局済みの書き込みに失敗した場合は進行中の正本を残す。残った正本はResyncで再移行できる。
// 書き込みの失敗はまとめて返す。フックは全ての書き込みが成功した場合のみ呼び出す。
func (m *Migrator) Migrate(ctx context.Context, s *model.Session) error {
	if !s.Completed {
		return model.NewInvalidSessionError(fmt.Sprintf("対局 %s は終局していません", s.ID))
	}

	var errs []error
	if err := m.sessions.SaveCompleted(ctx, s); err != nil {
		errs = append(errs, err)
	} else if err := m.sessions.DeleteActive(ctx, s.ID); err != nil {
		errs = append(errs, err)
	}
	if err := m.indexer.IndexCompleted(ctx, s); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Error("failed to migrate completed session",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	m.runHooks(ctx, s)
	return nil
}

// runHooks は登録された全てのフックを呼び出す。
// フックの失敗は対局の結果に影響しないため、ログとメトリクスに記録するだけにする。
func (m *Migrator) runHooks(ctx context.Context, s *model.Session) {
	c := Completed{
		SessionID:    s.ID,
		GameType:     s.GameType,
		Participants: s.ParticipantIDs(),
		Winners:      s.Winners,
		TournamentID: s.TournamentID,
		EventID:      s.EventID,
		CompletedAt:  s.CompletedAt,
		Session:      s,
	}
	for _, h := range m.hooks {
		if err := h.Hook.OnSessionCompleted(ctx, c); err != nil {
			m.logger.Warn("completion hook failed",
				slog.String("hook", h.Name),
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
			if m.observer != nil {
				m.observer.RecordHookFailure(h.Name)
			}
		}
	}
}
