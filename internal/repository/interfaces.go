// Package repository はデータ永続化のインターフェースと、
// キーバリューストア上のリポジトリ実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/banmen/internal/model"
)

// SessionRepository は対局の正本の永続化インターフェース。
type SessionRepository interface {
	// FindActive は進行中の対局とそのVersionを取得する。見つからない場合はnilを返す。
	FindActive(ctx context.Context, id string) (*model.Session, int64, error)
	// FindCompleted は終局済みの対局を取得する。見つからない場合はnilを返す。
	FindCompleted(ctx context.Context, id string) (*model.Session, error)
	// FindByID は進行中、終局済みの順に対局を探す。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, int64, error)
	// SaveActive は進行中の対局を条件付きで書き込み、書き込んだVersionを返す。
	SaveActive(ctx context.Context, s *model.Session, expectVersion int64) (int64, error)
	// SaveCompleted は終局済みの対局を書き込む。
	SaveCompleted(ctx context.Context, s *model.Session) error
	// DeleteActive は進行中の対局の正本を削除する。
	DeleteActive(ctx context.Context, id string) error
	// ListActive は進行中の対局を全て返す。
	ListActive(ctx context.Context) ([]*model.Session, error)
}

// PlayerRepository はプレイヤーごとの対局一覧とレーティングの永続化インターフェース。
type PlayerRepository interface {
	// FindByID はプレイヤーのレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, playerID string) (*model.PlayerRecord, error)
	// Update はmutateを適用したレコードを楽観的排他制御で書き込む。
	Update(ctx context.Context, playerID string, mutate func(*model.PlayerRecord) error) (*model.PlayerRecord, error)
}

// PresenceRepository はプレイヤーの最終アクセス時刻の永続化インターフェース。
type PresenceRepository interface {
	Touch(ctx context.Context, playerID string, at time.Time) error
	LastSeen(ctx context.Context, playerIDs []string) (map[string]time.Time, error)
}

// CompletedIndexRepository は終局済み対局の索引の永続化インターフェース。
type CompletedIndexRepository interface {
	Put(ctx context.Context, e *model.CompletedEntry) error
	Delete(ctx context.Context, e *model.CompletedEntry) error
	ListByGameType(ctx context.Context, gameType string, limit int) ([]*model.CompletedEntry, error)
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*model.CompletedEntry, error)
	ListByGameTypeAndPlayer(ctx context.Context, gameType, playerID string, limit int) ([]*model.CompletedEntry, error)
}

// RatingRepository はレーティング表の永続化インターフェース。
type RatingRepository interface {
	Put(ctx context.Context, e *model.RatingEntry) error
	ListByGameType(ctx context.Context, gameType string) ([]*model.RatingEntry, error)
}
