// Package rules はルールエンジンとの契約と、ゲーム種別のレジストリを提供する。
//
// コアはルールエンジンの盤面表現を参照しない。
// 盤面状態はシリアライズされた文字列として正本に保存され、
// 操作のたびにLoadで復元してから着手を適用する。
package rules

import "errors"

// ErrIllegalAction はルールエンジンが着手を拒否したことを示す。
var ErrIllegalAction = errors.New("illegal action")

const (
	// BlankMove は同時着手ゲームで脱落した参加者に自動で割り当てる予約済みの空着手。
	BlankMove = ""
	// PassMove はパスを表す予約済みの着手。
	PassMove = "pass"
	// ResignMove は投了を表す予約済みの着手。
	ResignMove = "resign"
)

// Engine はゲーム種別ごとのルールエンジン。
// 純粋で同期的、副作用を持たない実装であること。
type Engine interface {
	// New は新しい対局の盤面を生成する。
	New(players int, variants []string) (Game, error)
	// Load はシリアライズされた盤面を復元する。
	Load(state string) (Game, error)
}

// Game は1局分の盤面。参加者番号は1始まり。
type Game interface {
	// Apply は着手を適用する。不正な着手の場合はErrIllegalActionをラップしたエラーを返す。
	Apply(player int, move string) error
	// Resign は参加者の投了を適用する。多人数戦では投了後も対局が続く場合がある。
	Resign(player int) error
	// Over は終局しているかを返す。
	Over() bool
	// Winners は終局時の勝者を返す。引き分けは2人以上、無勝負は空。
	Winners() []int
	// CurrentPlayer は次に着手する参加者番号を返す。終局前のみ有効。
	CurrentPlayer() int
	// Moves は現在の合法手を返す。自動着手の判定に使う。
	Moves() []string
	// Serialize は盤面をシリアライズする。Loadと往復可能であること。
	Serialize() (string, error)
}

// SimultaneousGame は全参加者が同時に着手するゲーム。
type SimultaneousGame interface {
	Game
	// ApplyRound は全参加者の着手をまとめて1回で適用する。
	// 脱落した参加者の位置にはBlankMoveが入る。
	ApplyRound(moves []string) error
	// Eliminated は参加者が脱落済みかを返す。
	Eliminated(player int) bool
	// Legal は参加者ごとの着手の合法性を返す。
	Legal(player int, move string) bool
}
