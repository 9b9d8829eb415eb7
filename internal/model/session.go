package model

import (
	"slices"
	"strings"
	"time"
)

// KeySeparator は保存キーの階層区切り。プレイヤーIDには含められない。
const KeySeparator = "#"

// ValidPlayerID はプレイヤーIDが空でなく、保存キーの区切り文字を含まないかを返す。
func ValidPlayerID(id string) bool {
	return id != "" && !strings.Contains(id, KeySeparator)
}

// DrawMarker は参加者ごとの引き分け提案状態を表す。
type DrawMarker string

const (
	// DrawNone は提案なし。
	DrawNone DrawMarker = ""
	// DrawOffered は引き分けを提案済み。
	DrawOffered DrawMarker = "offered"
	// DrawAccepted は他者の提案を受諾済み。
	DrawAccepted DrawMarker = "accepted"
)

// Participant は対局の参加者を表す。
type Participant struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	TimeRemaining time.Duration     `json:"time_remaining"`
	Settings      map[string]string `json:"settings,omitempty"` // 盤面回転などの表示設定
	Draw          DrawMarker        `json:"draw,omitempty"`
}

// ClockSettings は対局の持ち時間設定を表す。
type ClockSettings struct {
	Increment time.Duration `json:"increment"`
	Max       time.Duration `json:"max"`
	// Hard がtrueの場合、持ち時間切れは即座に敗北となる。
	Hard bool `json:"hard"`
}

// ToMove は手番の参加者を表す。
// 手番制のゲームではPlayerに参加者インデックス（0始まり）を、
// 同時着手のゲームではSimultaneousに参加者ごとの着手待ちフラグを持つ。
// 終局後はどちらも空になる。
type ToMove struct {
	Player       *int   `json:"player,omitempty"`
	Simultaneous []bool `json:"simultaneous,omitempty"`
}

// SequentialTurn は手番制の手番を生成する。
func SequentialTurn(index int) ToMove {
	return ToMove{Player: &index}
}

// SimultaneousTurn は同時着手の手番を生成する。
func SimultaneousTurn(flags []bool) ToMove {
	return ToMove{Simultaneous: slices.Clone(flags)}
}

// IsEmpty は着手を待っている参加者がいないかを返す。
func (t ToMove) IsEmpty() bool {
	if t.Player != nil {
		return false
	}
	return !slices.Contains(t.Simultaneous, true)
}

// Includes は指定インデックスの参加者が着手待ちかを返す。
func (t ToMove) Includes(index int) bool {
	if t.Player != nil {
		return *t.Player == index
	}
	return index >= 0 && index < len(t.Simultaneous) && t.Simultaneous[index]
}

// Clone はToMoveのディープコピーを返す。
func (t ToMove) Clone() ToMove {
	c := ToMove{Simultaneous: slices.Clone(t.Simultaneous)}
	if t.Player != nil {
		p := *t.Player
		c.Player = &p
	}
	return c
}

// Session は対局の正本を表す。
// ルールエンジンが生成した盤面状態と、手番・持ち時間・勝者などの進行情報を保持する。
type Session struct {
	ID           string        `json:"id"`
	GameType     string        `json:"game_type"`
	Participants []Participant `json:"participants"`
	State        string        `json:"state"`
	ToMove       ToMove        `json:"to_move"`
	LastMoveTime time.Time     `json:"last_move_time"`
	Completed    bool          `json:"completed"`
	Winners      []int         `json:"winners,omitempty"` // 1始まりの参加者番号
	MoveCount    int           `json:"move_count"`
	Rated        bool          `json:"rated"`
	Clock        ClockSettings `json:"clock"`
	Variants     []string      `json:"variants,omitempty"`
	PieInvoked   bool          `json:"pie_invoked,omitempty"`
	// PartialMoves は同時着手ラウンドで提出済みの着手。未提出は空文字列。
	PartialMoves []string  `json:"partial_moves,omitempty"`
	TournamentID string    `json:"tournament_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	// CompletedAt は終局した時刻。進行中はゼロ値。
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// ParticipantIndex は指定ユーザーの参加者インデックスを返す。参加していない場合は-1を返す。
func (s *Session) ParticipantIndex(playerID string) int {
	for i, p := range s.Participants {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// ParticipantIDs は参加者IDの一覧を返す。
func (s *Session) ParticipantIDs() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.ID
	}
	return ids
}

// ClearDrawOffers は全参加者の引き分け提案を取り消す。
func (s *Session) ClearDrawOffers() {
	for i := range s.Participants {
		s.Participants[i].Draw = DrawNone
	}
}

// Clone はSessionのディープコピーを返す。
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = p
		if p.Settings != nil {
			c.Participants[i].Settings = make(map[string]string, len(p.Settings))
			for k, v := range p.Settings {
				c.Participants[i].Settings[k] = v
			}
		}
	}
	c.ToMove = s.ToMove.Clone()
	c.Winners = slices.Clone(s.Winners)
	c.Variants = slices.Clone(s.Variants)
	c.PartialMoves = slices.Clone(s.PartialMoves)
	return &c
}

// SummaryParticipant は一覧表示用の参加者情報。
type SummaryParticipant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// Summary は対局の非正規化された縮約コピー。
// プレイヤーごとの対局一覧に複製される。
type Summary struct {
	ID           string               `json:"id"`
	GameType     string               `json:"game_type"`
	Participants []SummaryParticipant `json:"participants"`
	ToMove       ToMove               `json:"to_move"`
	LastMoveTime time.Time            `json:"last_move_time"`
	MoveCount    int                  `json:"move_count"`
	Winners      []int                `json:"winners,omitempty"`
	Completed    bool                 `json:"completed"`
}

// Summary はSessionから一覧用のSummaryを生成する。
func (s *Session) Summary() Summary {
	parts := make([]SummaryParticipant, len(s.Participants))
	for i, p := range s.Participants {
		parts[i] = SummaryParticipant{ID: p.ID, Name: p.Name, TimeRemaining: p.TimeRemaining}
	}
	return Summary{
		ID:           s.ID,
		GameType:     s.GameType,
		Participants: parts,
		ToMove:       s.ToMove.Clone(),
		LastMoveTime: s.LastMoveTime,
		MoveCount:    s.MoveCount,
		Winners:      slices.Clone(s.Winners),
		Completed:    s.Completed,
	}
}

// DefaultRating はレーティング未登録のプレイヤーの初期値。
const DefaultRating = 1200.0

// Rating はプレイヤーのゲーム種別ごとのレーティング。
type Rating struct {
	Rating float64 `json:"rating"`
	N      int     `json:"n"`
	Wins   int     `json:"wins"`
	Draws  int     `json:"draws"`
}

// NewRating は初期値のRatingを返す。
func NewRating() Rating {
	return Rating{Rating: DefaultRating}
}

// maxRatedSessions はRatedSessionsに保持する対局IDの上限。
const maxRatedSessions = 100

// PlayerRecord はプレイヤーごとの対局一覧とレーティングを保持する。
// Versionは楽観的排他制御のカウンタで、更新ごとに1ずつ増加する。
// Versionを持たないレコードは旧形式として扱う。
type PlayerRecord struct {
	ID            string            `json:"id"`
	Version       *int64            `json:"version,omitempty"`
	Games         []Summary         `json:"games"`
	Ratings       map[string]Rating `json:"ratings,omitempty"`
	RatedSessions []string          `json:"rated_sessions,omitempty"`
}

// Stale はsがcurより古い状態のSummaryかを返す。
// 終局済みから進行中へ、また手数や最終着手時刻が戻る置き換えは古いとみなす。
func (s Summary) Stale(cur Summary) bool {
	switch {
	case cur.Completed && !s.Completed:
		return true
	case s.MoveCount < cur.MoveCount:
		return true
	default:
		return s.LastMoveTime.Before(cur.LastMoveTime)
	}
}

// UpsertSummary は対局IDが一致するエントリを置き換える。存在しない場合は末尾に追加する。
// 既存のエントリより古いSummaryでは置き換えない。他の対局のエントリには触れない。
func (r *PlayerRecord) UpsertSummary(s Summary) {
	if !r.UpdateSummary(s) {
		if _, ok := r.FindSummary(s.ID); !ok {
			r.Games = append(r.Games, s)
		}
	}
}

// UpdateSummary は対局IDが一致する既存のエントリだけを置き換え、置き換えた場合はtrueを返す。
// 存在しないエントリは追加しない。
func (r *PlayerRecord) UpdateSummary(s Summary) bool {
	for i := range r.Games {
		if r.Games[i].ID != s.ID {
			continue
		}
		if s.Stale(r.Games[i]) {
			return false
		}
		r.Games[i] = s
		return true
	}
	return false
}

// RemoveSummary は対局IDが一致するエントリを削除する。削除した場合はtrueを返す。
func (r *PlayerRecord) RemoveSummary(sessionID string) bool {
	before := len(r.Games)
	r.Games = slices.DeleteFunc(r.Games, func(s Summary) bool { return s.ID == sessionID })
	return len(r.Games) != before
}

// FindSummary は対局IDに一致するエントリを返す。
func (r *PlayerRecord) FindSummary(sessionID string) (Summary, bool) {
	for _, s := range r.Games {
		if s.ID == sessionID {
			return s, true
		}
	}
	return Summary{}, false
}

// RatingFor はゲーム種別のレーティングを返す。未登録の場合は初期値を返す。
func (r *PlayerRecord) RatingFor(gameType string) Rating {
	if rt, ok := r.Ratings[gameType]; ok {
		return rt
	}
	return NewRating()
}

// HasRated は対局のレーティング反映が済んでいるかを返す。
func (r *PlayerRecord) HasRated(sessionID string) bool {
	return slices.Contains(r.RatedSessions, sessionID)
}

// MarkRated は対局のレーティング反映済みを記録する。古いものから上限件数を超えた分を捨てる。
func (r *PlayerRecord) MarkRated(sessionID string) {
	if r.HasRated(sessionID) {
		return
	}
	r.RatedSessions = append(r.RatedSessions, sessionID)
	if len(r.RatedSessions) > maxRatedSessions {
		r.RatedSessions = r.RatedSessions[len(r.RatedSessions)-maxRatedSessions:]
	}
}

// CompletedEntry は終局済み対局の索引エントリ。
// ゲーム種別別・参加者別・ゲーム種別+参加者別に複製される派生データ。
type CompletedEntry struct {
	SessionID    string    `json:"session_id"`
	GameType     string    `json:"game_type"`
	Participants []string  `json:"participants"`
	Winners      []int     `json:"winners,omitempty"`
	MoveCount    int       `json:"move_count"`
	CompletedAt  time.Time `json:"completed_at"`
	TournamentID string    `json:"tournament_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
}

// RatingEntry はゲーム種別ごとのレーティング表のエントリ。
type RatingEntry struct {
	PlayerID string `json:"player_id"`
	GameType string `json:"game_type"`
	Rating
}

// PlayerPresence はプレイヤーの最終アクセス時刻を表す。
type PlayerPresence struct {
	PlayerID string    `json:"player_id"`
	LastSeen time.Time `json:"last_seen"`
}
