// Package session は対局操作のユースケースを提供する。
//
// 1つの操作は、正本の読み込み、状態遷移、正本の条件付き書き込み、
// 非正規化コピーへの複製、終局処理、通知の順に進む。
// 正本の書き込みは読み込んだVersionを条件にし、同じ対局への並行した操作は
// 後から書き込んだ側がSESSION_CONFLICTで失敗する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/banmen/internal/completion"
	"github.com/hitoshi/banmen/internal/fanout"
	"github.com/hitoshi/banmen/internal/game"
	"github.com/hitoshi/banmen/internal/metrics"
	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/notify"
	"github.com/hitoshi/banmen/internal/rating"
	"github.com/hitoshi/banmen/internal/repository"
	"github.com/hitoshi/banmen/internal/rules"
)

// Deps はServiceの依存。PublisherとMetricsとLoggerとNowは省略できる。
type Deps struct {
	Registry    *rules.Registry
	Machine     *game.Machine
	Sessions    repository.SessionRepository
	Players     repository.PlayerRepository
	Presence    repository.PresenceRepository
	Index       repository.CompletedIndexRepository
	RatingTable repository.RatingRepository
	Replicator  *fanout.Replicator
	Rater       *rating.Updater
	Migrator    *completion.Migrator
	Publisher   notify.Publisher
	Sanitizer   notify.Sanitizer
	Metrics     metrics.MetricsCollector
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service は対局操作のユースケースを実装する。
type Service struct {
	Deps
}

// NewService はServiceを生成する。
func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Publisher == nil {
		d.Publisher = notify.Publishers{}
	}
	return &Service{Deps: d}
}

// Outcome は受理された操作の結果。
type Outcome struct {
	Session    *model.Session
	Changed    bool
	Terminated bool
}

// ReplicationError は正本の書き込みは成功したが、複製または終局処理の一部が失敗したことを表す。
// 操作自体は確定しており、失敗した複製はResyncで回復できる。
type ReplicationError struct {
	SessionID string
	Err       error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("session %s committed but replication failed: %v", e.SessionID, e.Err)
}

func (e *ReplicationError) Unwrap() error { return e.Err }

// transition は読み込んだ正本から新しい正本を計算する。
type transition func(s *model.Session, now time.Time) (*game.Result, error)

// CreateRequest は対局作成の入力。
type CreateRequest struct {
	GameType     string
	Participants []model.Participant
	Options      game.StartOptions
}

// Create は新しい対局を作成する。actorが空でない場合は参加者であること。
func (svc *Service) Create(ctx context.Context, actor string, req CreateRequest) (*Outcome, error) {
	now := svc.Now()
	participants := make([]model.Participant, len(req.Participants))
	for i, p := range req.Participants {
		if svc.Sanitizer != nil {
			p.Name = svc.Sanitizer.Sanitize(p.Name)
		}
		participants[i] = p
	}
	s, err := svc.Machine.Start(req.GameType, participants, req.Options, now)
	if err != nil {
		svc.reject("create", err)
		return nil, err
	}
	if actor != "" && s.ParticipantIndex(actor) < 0 {
		err := model.NewNotParticipantError(actor)
		svc.reject("create", err)
		return nil, err
	}
	if _, err := svc.Sessions.SaveActive(ctx, s, repository.MustNotExist); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, model.NewSessionConflictError(s.ID)
		}
		return nil, err
	}
	svc.touch(ctx, actor, now)
	return svc.commit(ctx, "create", &game.Result{Session: s, Changed: true}, now)
}

// Get は対局の正本を返す。進行中、終局済みの順に探す。
func (svc *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	s, _, err := svc.Sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, model.NewSessionNotFoundError(id)
	}
	return s, nil
}

// Move は着手を適用する。
func (svc *Service) Move(ctx context.Context, id, actor, move string, offerDraw bool) (*Outcome, error) {
	return svc.apply(ctx, "move", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		return svc.Machine.Move(s, actor, move, offerDraw, now)
	})
}

// Resign は投了を適用する。
func (svc *Service) Resign(ctx context.Context, id, actor string) (*Outcome, error) {
	return svc.apply(ctx, "resign", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		return svc.Machine.Resign(s, actor, now)
	})
}

// Timeout は時間切れを適用する。actorが空の場合はシステムからの要求として扱う。
func (svc *Service) Timeout(ctx context.Context, id, actor string) (*Outcome, error) {
	return svc.apply(ctx, "timeout", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		if err := requireParticipant(s, actor); err != nil {
			return nil, err
		}
		return svc.Machine.Timeout(s, now)
	})
}

// OfferDraw は引き分けを提案または受諾する。
func (svc *Service) OfferDraw(ctx context.Context, id, actor string) (*Outcome, error) {
	return svc.apply(ctx, "draw", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		return svc.Machine.OfferDraw(s, actor, now)
	})
}

// InvokePie はパイルールを適用する。2回目以降はChanged=falseの結果を返す。
func (svc *Service) InvokePie(ctx context.Context, id, actor string) (*Outcome, error) {
	return svc.apply(ctx, "pie", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		return svc.Machine.InvokePie(s, actor, now)
	})
}

// Abandon は放置された対局を勝者なしで終局させる。actorが空の場合はシステムからの要求として扱う。
// 参加者の最終アクセス時刻は操作者のアクセスを記録する前に読む。
func (svc *Service) Abandon(ctx context.Context, id, actor string) (*Outcome, error) {
	return svc.apply(ctx, "abandon", id, actor, func(s *model.Session, now time.Time) (*game.Result, error) {
		if err := requireParticipant(s, actor); err != nil {
			return nil, err
		}
		lastSeen, err := svc.Presence.LastSeen(ctx, s.ParticipantIDs())
		if err != nil {
			return nil, err
		}
		return svc.Machine.Abandon(s, lastSeen, now)
	})
}

func requireParticipant(s *model.Session, actor string) error {
	if actor != "" && s.ParticipantIndex(actor) < 0 {
		return model.NewNotParticipantError(actor)
	}
	return nil
}

// apply は正本を読み込み、遷移を計算し、読み込んだVersionを条件に書き込む。
// 拒否された遷移は何も書き込まない。
func (svc *Service) apply(ctx context.Context, action, id, actor string, fn transition) (*Outcome, error) {
	start := time.Now()
	defer func() { svc.Metrics.RecordActionLatency(action, time.Since(start)) }()

	s, version, err := svc.Sessions.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		err := svc.missing(ctx, id)
		svc.reject(action, err)
		return nil, err
	}

	now := svc.Now()
	res, err := fn(s, now)
	svc.touch(ctx, actor, now)
	if err != nil {
		svc.reject(action, err)
		return nil, err
	}
	if !res.Changed {
		return &Outcome{Session: res.Session}, nil
	}

	if _, err := svc.Sessions.SaveActive(ctx, res.Session, version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			err = model.NewSessionConflictError(id)
			svc.reject(action, err)
		}
		return nil, err
	}
	return svc.commit(ctx, action, res, now)
}

// missing は進行中の正本がない場合のエラーを返す。終局済みならALREADY_TERMINALにする。
func (svc *Service) missing(ctx context.Context, id string) error {
	done, err := svc.Sessions.FindCompleted(ctx, id)
	if err != nil {
		return err
	}
	if done != nil {
		return model.NewAlreadyTerminalError(id)
	}
	return model.NewSessionNotFoundError(id)
}

// commit は書き込み済みの遷移を非正規化コピーに複製し、終局していれば終局処理を行う。
// 失敗してもここで処理を止めず、全ての書き込みを試みてからReplicationErrorで返す。
func (svc *Service) commit(ctx context.Context, action string, res *game.Result, now time.Time) (*Outcome, error) {
	s := res.Session
	out := &Outcome{Session: s, Changed: true, Terminated: res.Terminated}
	svc.Metrics.RecordTransition(action, res.Terminated)

	var errs []error
	var plan *rating.Plan
	if res.Terminated {
		p, err := svc.Rater.Plan(ctx, s)
		if err != nil {
			errs = append(errs, err)
		}
		plan = p
	}

	if err := svc.Replicator.Publish(ctx, s, plan); err != nil {
		errs = append(errs, err)
	} else if plan != nil {
		svc.Metrics.RecordRatingApplied(s.GameType)
	}

	if res.Terminated {
		if err := svc.Migrator.Migrate(ctx, s); err != nil {
			errs = append(errs, err)
		}
		svc.Metrics.RecordSessionCompleted(s.GameType)
	}

	if err := svc.Publisher.Publish(ctx, notify.NewEvent(s, svc.Sanitizer, now)); err != nil {
		svc.Logger.Warn("failed to publish session event",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}

	if len(errs) > 0 {
		svc.Metrics.RecordFanoutFailure()
		err := &ReplicationError{SessionID: s.ID, Err: errors.Join(errs...)}
		svc.Logger.Error("session replication incomplete",
			slog.String("session_id", s.ID),
			slog.String("action", action),
			slog.String("error", err.Err.Error()),
		)
		return out, err
	}
	return out, nil
}

// touch は操作者の最終アクセス時刻を記録する。失敗は操作の結果に影響しない。
func (svc *Service) touch(ctx context.Context, actor string, now time.Time) {
	if actor == "" {
		return
	}
	if err := svc.Presence.Touch(ctx, actor, now); err != nil {
		svc.Logger.Warn("failed to record last seen",
			slog.String("player_id", actor),
			slog.String("error", err.Error()),
		)
	}
}

func (svc *Service) reject(action string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		svc.Metrics.RecordRejection(action, apiErr.Code)
	}
}
