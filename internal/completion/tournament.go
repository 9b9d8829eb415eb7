package completion

import (
	"context"
	"time"
)

// Poster はJSONのペイロードを外部に送信する。
type Poster interface {
	Post(ctx context.Context, payload any) error
}

// TournamentPayload は大会・イベント側に送る終局通知。
type TournamentPayload struct {
	SessionID    string    `json:"session_id"`
	GameType     string    `json:"game_type"`
	Participants []string  `json:"participants"`
	Winners      []int     `json:"winners"`
	TournamentID string    `json:"tournament_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// TournamentHook は大会・イベントに属する対局の終局を外部に通知する。
// 大会の集計は外部の責務で、ここでは対局ID・勝者・大会IDを送るだけにする。
type TournamentHook struct {
	poster Poster
}

// NewTournamentHook はTournamentHookを生成する。
func NewTournamentHook(poster Poster) *TournamentHook {
	return &TournamentHook{poster: poster}
}

// OnSessionCompleted は大会にもイベントにも属さない対局では何もしない。
func (h *TournamentHook) OnSessionCompleted(ctx context.Context, c Completed) error {
	if c.TournamentID == "" && c.EventID == "" {
		return nil
	}
	winners := c.Winners
	if winners == nil {
		winners = []int{}
	}
	return h.poster.Post(ctx, TournamentPayload{
		SessionID:    c.SessionID,
		GameType:     c.GameType,
		Participants: c.Participants,
		Winners:      winners,
		TournamentID: c.TournamentID,
		EventID:      c.EventID,
		CompletedAt:  c.CompletedAt,
	})
}
