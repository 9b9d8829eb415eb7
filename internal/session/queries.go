package session

import (
	"context"
	"errors"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/rating"
)

// DefaultCompletedLimit は終局済み対局の一覧の既定件数。
const DefaultCompletedLimit = 50

// Resync は正本と全ての非正規化コピーを突き合わせて書き直す。何度実行してもよい。
// 正本の書き込みと複製の間でプロセスが停止した場合に使う。
// 終局済みなのに進行中の領域に残っている正本は終局済みの領域へ移し直す。
func (svc *Service) Resync(ctx context.Context, id string) (*model.Session, error) {
	s, _, err := svc.Sessions.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	remigrate := s != nil && s.Completed
	if s == nil {
		if s, err = svc.Sessions.FindCompleted(ctx, id); err != nil {
			return nil, err
		}
		if s == nil {
			return nil, model.NewSessionNotFoundError(id)
		}
	}

	var (
		plan *rating.Plan
		errs []error
	)
	if s.Completed {
		if plan, err = svc.Rater.Plan(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	if remigrate {
		if err := svc.Replicator.Publish(ctx, s, plan); err != nil {
			errs = append(errs, err)
		}
		if err := svc.Migrator.Migrate(ctx, s); err != nil {
			errs = append(errs, err)
		}
	} else if err := svc.Replicator.Reconcile(ctx, s, plan); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return s, &ReplicationError{SessionID: s.ID, Err: errors.Join(errs...)}
	}
	return s, nil
}

// PlayerGames はプレイヤーの対局一覧を返す。記録がない場合は空の一覧を返す。
func (svc *Service) PlayerGames(ctx context.Context, playerID string) ([]model.Summary, error) {
	pr, err := svc.Players.FindByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if pr == nil || pr.Games == nil {
		return []model.Summary{}, nil
	}
	return pr.Games, nil
}

// PlayerRatings はプレイヤーのゲーム種別ごとのレーティングを返す。
func (svc *Service) PlayerRatings(ctx context.Context, playerID string) (map[string]model.Rating, error) {
	pr, err := svc.Players.FindByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if pr == nil || pr.Ratings == nil {
		return map[string]model.Rating{}, nil
	}
	return pr.Ratings, nil
}

// DismissGame は自分の対局一覧から終局済みの対局を取り除く。
func (svc *Service) DismissGame(ctx context.Context, playerID, sessionID string) ([]model.Summary, error) {
	pr, err := svc.Replicator.Dismiss(ctx, playerID, sessionID)
	if err != nil {
		return nil, err
	}
	if pr.Games == nil {
		return []model.Summary{}, nil
	}
	return pr.Games, nil
}

// Ratings はゲーム種別のレーティング表を返す。
func (svc *Service) Ratings(ctx context.Context, gameType string) ([]*model.RatingEntry, error) {
	desc, _, err := svc.Registry.Lookup(gameType)
	if err != nil {
		return nil, err
	}
	return svc.RatingTable.ListByGameType(ctx, desc.ID)
}

// CompletedQuery は終局済み対局の検索条件。GameTypeとPlayerIDの少なくとも一方を指定する。
type CompletedQuery struct {
	GameType string
	PlayerID string
	Limit    int
}

// Completed は終局済み対局を新しい順に返す。
func (svc *Service) Completed(ctx context.Context, q CompletedQuery) ([]*model.CompletedEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultCompletedLimit
	}
	gameType := ""
	if q.GameType != "" {
		desc, _, err := svc.Registry.Lookup(q.GameType)
		if err != nil {
			return nil, err
		}
		gameType = desc.ID
	}
	switch {
	case gameType != "" && q.PlayerID != "":
		return svc.Index.ListByGameTypeAndPlayer(ctx, gameType, q.PlayerID, limit)
	case gameType != "":
		return svc.Index.ListByGameType(ctx, gameType, limit)
	case q.PlayerID != "":
		return svc.Index.ListByPlayer(ctx, q.PlayerID, limit)
	default:
		return nil, model.NewInvalidSessionError("ゲーム種別かプレイヤーを指定してください")
	}
}

// GameTypes は登録済みのゲーム種別を返す。
func (svc *Service) GameTypes() []model.GameTypeDescriptor {
	return svc.Registry.Descriptors()
}
