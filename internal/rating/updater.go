package rating

import (
	"context"
	"fmt"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/repository"
)

// Outcome は1人の参加者の対局結果。
// Opponentは対局開始時点ではなく計画作成時に読んだ相手のレーティング。
type Outcome struct {
	Score    float64
	Opponent model.Rating
}

// Plan は1つの対局で両参加者に適用するレーティングの更新内容。
// 非正規化コピーの書き込みと同じ楽観的更新の中でApplyする。
// 更新後の値は保持せず、Apply時に読み直したレコードの値から計算する。
type Plan struct {
	SessionID string
	GameType  string
	Outcomes  map[string]Outcome
}

// Apply はプレイヤーレコードにレーティングを反映する。
// 既にこの対局を反映済み、または対象外のプレイヤーの場合は何もせずfalseを返す。
func (p *Plan) Apply(pr *model.PlayerRecord) bool {
	if p == nil || pr.HasRated(p.SessionID) {
		return false
	}
	o, ok := p.Outcomes[pr.ID]
	if !ok {
		return false
	}
	if pr.Ratings == nil {
		pr.Ratings = make(map[string]model.Rating)
	}
	pr.Ratings[p.GameType] = Apply(pr.RatingFor(p.GameType), o.Opponent, o.Score)
	pr.MarkRated(p.SessionID)
	return true
}

// Updater は終局した対局のレーティング更新内容を計算する。
type Updater struct {
	players repository.PlayerRepository
}

// NewUpdater はUpdaterを生成する。
func NewUpdater(players repository.PlayerRepository) *Updater {
	return &Updater{players: players}
}

// Plan は両参加者の現在のレーティングを読み、更新内容を返す。
// 対象外の対局、または両参加者とも反映済みの場合はnilを返す。
func (u *Updater) Plan(ctx context.Context, s *model.Session) (*Plan, error) {
	if !Eligible(s) {
		return nil, nil
	}
	var (
		before [2]model.Rating
		done   int
	)
	for i, p := range s.Participants {
		pr, err := u.players.FindByID(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("レーティングの取得に失敗しました: %w", err)
		}
		before[i] = model.NewRating()
		if pr != nil {
			before[i] = pr.RatingFor(s.GameType)
			if pr.HasRated(s.ID) {
				done++
			}
		}
	}
	if done == len(s.Participants) {
		return nil, nil
	}
	return &Plan{
		SessionID: s.ID,
		GameType:  s.GameType,
		Outcomes: map[string]Outcome{
			s.Participants[0].ID: {Score: Score(s, 0), Opponent: before[1]},
			s.Participants[1].ID: {Score: Score(s, 1), Opponent: before[0]},
		},
	}, nil
}
