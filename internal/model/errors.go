// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: game, replication, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotYourTurn                  = "NOT_YOUR_TURN"
	ErrCodeIllegalAction                = "ILLEGAL_ACTION"
	ErrCodeNoTimeout                    = "NO_TIMEOUT"
	ErrCodeAlreadyTerminal              = "ALREADY_TERMINAL"
	ErrCodeReplicationConflictExhausted = "REPLICATION_CONFLICT_EXHAUSTED"
	ErrCodeUnknownGameType              = "UNKNOWN_GAME_TYPE"
	ErrCodeTimeExpired                  = "TIME_EXPIRED"
	ErrCodeSessionNotFound              = "SESSION_NOT_FOUND"
	ErrCodeSessionConflict              = "SESSION_CONFLICT"
	ErrCodeNotParticipant               = "NOT_PARTICIPANT"
	ErrCodePieNotAllowed                = "PIE_NOT_ALLOWED"
	ErrCodeDrawNotAllowed               = "DRAW_NOT_ALLOWED"
	ErrCodeNotAbandoned                 = "NOT_ABANDONED"
	ErrCodeInvalidSession               = "INVALID_SESSION"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかを判定する。
// ラップされたエラーにも対応する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewNotYourTurnError は手番でない参加者からの操作エラーを生成する。
func NewNotYourTurnError(playerID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotYourTurn,
		Message:  fmt.Sprintf("現在はあなたの手番ではありません: %s", playerID),
		Category: "game",
		Action:   "相手の着手を待ってから再度操作してください。",
	}
}

// NewIllegalActionError はルールエンジンが拒否した着手のエラーを生成する。
func NewIllegalActionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeIllegalAction,
		Message:  fmt.Sprintf("不正な着手です: %s", reason),
		Category: "game",
		Action:   "合法手を選択してください。",
	}
}

// NewNoTimeoutError は持ち時間切れが発生していない場合のエラーを生成する。
func NewNoTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeNoTimeout,
		Message:  "持ち時間切れの参加者はいません。",
		Category: "game",
		Action:   "持ち時間が尽きてから再度申請してください。",
	}
}

// NewAlreadyTerminalError は終局済みセッションへの操作エラーを生成する。
func NewAlreadyTerminalError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyTerminal,
		Message:  fmt.Sprintf("対局は既に終了しています: %s", sessionID),
		Category: "game",
		Action:   "終局済みの対局には操作できません。",
	}
}

// NewReplicationConflictExhaustedError は非正規化リストへの反映が競合により失敗した場合のエラーを生成する。
// 正本の更新は完了しているため、再同期で回復できる。
func NewReplicationConflictExhaustedError(key string, attempts int) *APIError {
	return &APIError{
		Code:     ErrCodeReplicationConflictExhausted,
		Message:  fmt.Sprintf("競合により%d回の更新がすべて失敗しました: %s", attempts, key),
		Category: "replication",
		Action:   "対局は保存されています。しばらく待ってから再同期してください。",
	}
}

// NewUnknownGameTypeError は未登録のゲーム種別エラーを生成する。
func NewUnknownGameTypeError(gameType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownGameType,
		Message:  fmt.Sprintf("未登録のゲーム種別です: %s", gameType),
		Category: "validation",
		Action:   "ゲーム種別を確認してください。",
	}
}

// NewTimeExpiredError はハードクロックの持ち時間切れ後に着手しようとした場合のエラーを生成する。
func NewTimeExpiredError(playerID string) *APIError {
	return &APIError{
		Code:     ErrCodeTimeExpired,
		Message:  fmt.Sprintf("持ち時間が尽きているため着手できません: %s", playerID),
		Category: "game",
		Action:   "この対局は時間切れとして処理されます。",
	}
}

// NewSessionNotFoundError は対局が見つからない場合のエラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された対局が見つかりません: %s", sessionID),
		Category: "game",
		Action:   "対局IDを確認してください。",
	}
}

// NewSessionConflictError は同一対局への同時更新が検出された場合のエラーを生成する。
func NewSessionConflictError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionConflict,
		Message:  fmt.Sprintf("対局が同時に更新されました: %s", sessionID),
		Category: "game",
		Action:   "最新の盤面を取得してから再度操作してください。",
	}
}

// NewNotParticipantError は対局の参加者でないユーザーからの操作エラーを生成する。
func NewNotParticipantError(playerID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotParticipant,
		Message:  fmt.Sprintf("この対局の参加者ではありません: %s", playerID),
		Category: "game",
		Action:   "参加している対局のみ操作できます。",
	}
}

// NewPieNotAllowedError はパイルールが使えない場合のエラーを生成する。
func NewPieNotAllowedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePieNotAllowed,
		Message:  fmt.Sprintf("パイルールは使用できません: %s", reason),
		Category: "game",
		Action:   "パイルール対応のゲームで、手番のときに使用してください。",
	}
}

// NewDrawNotAllowedError は引き分け提案ができない場合のエラーを生成する。
func NewDrawNotAllowedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDrawNotAllowed,
		Message:  fmt.Sprintf("引き分けを提案できません: %s", reason),
		Category: "game",
		Action:   "進行中の対局で、脱落していない参加者のみ提案できます。",
	}
}

// NewNotAbandonedError は放棄条件を満たさない場合のエラーを生成する。
func NewNotAbandonedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNotAbandoned,
		Message:  fmt.Sprintf("放棄条件を満たしていません: %s", reason),
		Category: "game",
		Action:   "対局が長期間放置されている場合のみ処理できます。",
	}
}

// NewInvalidSessionError は対局の作成パラメータが不正な場合のエラーを生成する。
func NewInvalidSessionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSession,
		Message:  fmt.Sprintf("対局の設定が不正です: %s", reason),
		Category: "validation",
		Action:   "参加者数とゲーム設定を確認してください。",
	}
}
