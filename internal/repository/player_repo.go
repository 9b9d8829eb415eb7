package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/banmen/internal/model"
)

// KVPlayerRepo はプレイヤーごとの対局一覧とレーティングのリポジトリ。
// 書き込みは全てUpdateOptimisticを通し、Versionで直列化する。
type KVPlayerRepo struct {
	opt Optimistic
}

// NewKVPlayerRepo はKVPlayerRepoを生成する。maxAttemptsが1未満の場合は既定値（3回）を使う。
func NewKVPlayerRepo(store Store, maxAttempts int, observer ConflictObserver) *KVPlayerRepo {
	return &KVPlayerRepo{opt: Optimistic{Store: store, MaxAttempts: maxAttempts, Observer: observer}}
}

// FindByID はプレイヤーのレコードを取得する。見つからない場合はnilを返す。
func (r *KVPlayerRepo) FindByID(ctx context.Context, playerID string) (*model.PlayerRecord, error) {
	rec, err := r.opt.Store.Get(ctx, PlayerKey(playerID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プレイヤーの取得に失敗しました: %w", err)
	}
	pr := &model.PlayerRecord{}
	if err := json.Unmarshal(rec.Value, pr); err != nil {
		return nil, fmt.Errorf("プレイヤーのデコードに失敗しました: %w", err)
	}
	pr.ID = playerID
	pr.Version = versionPtr(rec.Version)
	return pr, nil
}

// Update はプレイヤーのレコードにmutateを適用して楽観的に書き込む。
// mutateは競合のたびに最新のレコードで呼び直される。
func (r *KVPlayerRepo) Update(ctx context.Context, playerID string, mutate func(*model.PlayerRecord) error) (*model.PlayerRecord, error) {
	merged, version, err := UpdateOptimistic(ctx, r.opt, PlayerKey(playerID),
		func(current model.PlayerRecord, exists bool) (model.PlayerRecord, error) {
			current.ID = playerID
			current.Version = nil
			if err := mutate(&current); err != nil {
				return current, err
			}
			current.Version = nil
			return current, nil
		})
	if err != nil {
		return nil, err
	}
	merged.Version = versionPtr(version)
	return &merged, nil
}

func versionPtr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
