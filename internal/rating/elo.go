// Package rating は2人対局のEloレーティング計算を提供する。
package rating

import (
	"math"

	"github.com/hitoshi/banmen/internal/model"
)

// divisor はロジスティック曲線の尺度。
const divisor = 400.0

// Expected はレーティングraのプレイヤーがrbに対して得る期待得点を返す。
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/divisor))
}

// KFactor は対局数に応じたK係数を返す。対局数が増えるほど小さくなる。
func KFactor(n int) float64 {
	switch {
	case n < 10:
		return 40
	case n < 20:
		return 30
	case n < 40:
		return 25
	default:
		return 20
	}
}

// Eligible はレーティング対象の対局かを返す。
// 2人のレーティング対象対局で、参加者数を超える手数があり、勝者（引き分け含む）が決まっていること。
func Eligible(s *model.Session) bool {
	return s.Completed &&
		s.Rated &&
		len(s.Participants) == 2 &&
		s.MoveCount > len(s.Participants) &&
		len(s.Winners) > 0
}

// Score は参加者インデックスの得点を返す。勝ち1、引き分け0.5、負け0。
func Score(s *model.Session, index int) float64 {
	won := false
	for _, w := range s.Winners {
		if w == index+1 {
			won = true
		}
	}
	switch {
	case !won:
		return 0
	case len(s.Winners) > 1:
		return 0.5
	default:
		return 1
	}
}

// Apply は対戦相手のレーティングと得点からselfの新しいレーティングを計算する。
func Apply(self, opponent model.Rating, score float64) model.Rating {
	next := self
	next.Rating = self.Rating + KFactor(self.N)*(score-Expected(self.Rating, opponent.Rating))
	next.N++
	switch score {
	case 1:
		next.Wins++
	case 0.5:
		next.Draws++
	}
	return next
}
