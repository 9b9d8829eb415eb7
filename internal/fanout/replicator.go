// Package fanout は対局の変更を非正規化コピーに複製する。
//
// 正本の対局が唯一の真実で、プレイヤーごとの対局一覧・終局索引・レーティング表は
// 結果整合のコピーとして扱う。プレイヤーごとの一覧はVersionによる楽観的更新で書き込み、
// 競合時は対局IDで識別した自分の差分だけを再適用する。
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rating"
	"github.com/hitoshi/banmen/internal/repository"
)

// Replicator は対局の変更を非正規化コピーに複製する。
type Replicator struct {
	players repository.PlayerRepository
	index   repository.CompletedIndexRepository
	ratings repository.RatingRepository
	logger  *slog.Logger
}

// NewReplicator はReplicatorを生成する。loggerがnilの場合はslog.Default()を使う。
func NewReplicator(
	players repository.PlayerRepository,
	index repository.CompletedIndexRepository,
	ratings repository.RatingRepository,
	logger *slog.Logger,
) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{players: players, index: index, ratings: ratings, logger: logger}
}

// Publish は対局のSummaryを全参加者の対局一覧に複製する。
// planがnilでない場合は、同じ楽観的更新の中でレーティングも反映する。
// 一部の参加者への書き込みが失敗しても残りの参加者には書き込み、失敗をまとめて返す。
func (r *Replicator) Publish(ctx context.Context, s *model.Session, plan *rating.Plan) error {
	return r.publish(ctx, s, plan, true)
}

// publish はSummaryとレーティングを全参加者に書き込む。
// insertがfalseの場合、一覧に存在しない対局のSummaryは追加しない。
func (r *Replicator) publish(ctx context.Context, s *model.Session, plan *rating.Plan, insert bool) error {
	summary := s.Summary()
	var errs []error
	for _, pid := range s.ParticipantIDs() {
		var rated bool
		pr, err := r.players.Update(ctx, pid, func(pr *model.PlayerRecord) error {
			if insert {
				pr.UpsertSummary(summary)
			} else {
				pr.UpdateSummary(summary)
			}
			rated = plan.Apply(pr)
			return nil
		})
		if err != nil {
			r.logger.Error("failed to replicate session summary",
				slog.String("session_id", s.ID),
				slog.String("player_id", pid),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("player %s: %w", pid, err))
			continue
		}
		if rated {
			entry := &model.RatingEntry{PlayerID: pid, GameType: s.GameType, Rating: pr.RatingFor(s.GameType)}
			if err := r.ratings.Put(ctx, entry); err != nil {
				errs = append(errs, fmt.Errorf("rating table for %s: %w", pid, err))
			}
		}
	}
	return errors.Join(errs...)
}

// IndexCompleted は終局済み対局の索引エントリを書き込む。
func (r *Replicator) IndexCompleted(ctx context.Context, s *model.Session) error {
	if !s.Completed {
		return nil
	}
	return r.index.Put(ctx, CompletedEntry(s))
}

// Reconcile は正本の対局と全ての非正規化コピーを突き合わせて書き直す。
// 同じ内容の書き込みは変更なしとして扱うため、何度実行してもよい。
// 正本の書き込みと複製の間でプロセスが停止した場合の回復に使う。
// 終局済みの対局は、Dismissで一覧から取り除かれたSummaryを戻さない。
func (r *Replicator) Reconcile(ctx context.Context, s *model.Session, plan *rating.Plan) error {
	var errs []error
	if err := r.publish(ctx, s, plan, !s.Completed); err != nil {
		errs = append(errs, err)
	}
	if err := r.IndexCompleted(ctx, s); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Dismiss はプレイヤーの対局一覧から終局済み対局のSummaryを取り除く。
// 進行中の対局は取り除けない。
func (r *Replicator) Dismiss(ctx context.Context, playerID, sessionID string) (*model.PlayerRecord, error) {
	return r.players.Update(ctx, playerID, func(pr *model.PlayerRecord) error {
		sum, ok := pr.FindSummary(sessionID)
		if !ok {
			return nil
		}
		if !sum.Completed {
			return model.NewInvalidSessionError("進行中の対局は一覧から削除できません")
		}
		pr.RemoveSummary(sessionID)
		return nil
	})
}

// CompletedEntry は終局済み対局の索引エントリを生成する。
func CompletedEntry(s *model.Session) *model.CompletedEntry {
	return &model.CompletedEntry{
		SessionID:    s.ID,
		GameType:     s.GameType,
		Participants: s.ParticipantIDs(),
		Winners:      s.Winners,
		MoveCount:    s.MoveCount,
		CompletedAt:  s.CompletedAt,
		TournamentID: s.TournamentID,
		EventID:      s.EventID,
	}
}
