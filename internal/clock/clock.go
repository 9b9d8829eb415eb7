// Package clock は対局の持ち時間計算を提供する。
// どの関数もI/Oを行わず、渡されたSessionから値を計算するだけである。
package clock

import (
	"time"

	"github.com/hitoshi/banmen/internal/model"
)

// Charge は着手した参加者の持ち時間計算の結果。
type Charge struct {
	// Elapsed は最終着手からの経過時間。
	Elapsed time.Duration
	// Deficit は持ち時間から経過時間を引いた値。負の場合は時間切れ。
	Deficit time.Duration
	// Remaining は加算と上限適用後の新しい持ち時間。
	Remaining time.Duration
	// Expired は切れ負けの対局で時間切れになっていることを示す。
	// この場合の着手は合法手ではなく時間切れ負けとして扱う。
	Expired bool
}

// Elapsed は最終着手からの経過時間を返す。時刻が巻き戻った場合は0とする。
func Elapsed(s *model.Session, now time.Time) time.Duration {
	d := now.Sub(s.LastMoveTime)
	if d < 0 {
		return 0
	}
	return d
}

// Compute は参加者indexが時刻nowに着手した場合の持ち時間を計算する。
// remaining = max(0, remaining - elapsed) + increment を上限で切り詰める。
func Compute(s *model.Session, index int, now time.Time) Charge {
	elapsed := Elapsed(s, now)
	deficit := s.Participants[index].TimeRemaining - elapsed
	remaining := max(deficit, 0)
	return Charge{
		Elapsed:   elapsed,
		Deficit:   deficit,
		Remaining: Credit(s.Clock, remaining),
		Expired:   s.Clock.Hard && deficit < 0,
	}
}

// Apply はComputeの結果を参加者の持ち時間に反映する。
// 切れ負けの場合は持ち時間を変更せずに結果だけを返す。
func Apply(s *model.Session, index int, now time.Time) Charge {
	c := Compute(s, index, now)
	if !c.Expired {
		s.Participants[index].TimeRemaining = c.Remaining
	}
	return c
}

// Credit は持ち時間に加算時間を足し、上限で切り詰めた値を返す。
// Maxが0以下の場合は上限なしとする。
func Credit(settings model.ClockSettings, remaining time.Duration) time.Duration {
	remaining += settings.Increment
	if settings.Max > 0 && remaining > settings.Max {
		return settings.Max
	}
	return remaining
}

// Expired は時間切れの参加者を探す。
// 手番制では手番の参加者、同時着手では着手待ちの参加者のうち不足が最も大きい参加者を返す。
// 見つからない場合はokがfalseになる。
func Expired(s *model.Session, now time.Time) (index int, ok bool) {
	if s.Completed {
		return -1, false
	}
	elapsed := Elapsed(s, now)
	index = -1
	var worst time.Duration
	for i, p := range s.Participants {
		if !s.ToMove.Includes(i) {
			continue
		}
		deficit := p.TimeRemaining - elapsed
		if deficit < 0 && (index < 0 || deficit < worst) {
			index, worst = i, deficit
		}
	}
	return index, index >= 0
}
