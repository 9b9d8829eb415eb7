package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/banmen/internal/model"
)

// KVSessionRepo はStoreを使った対局の正本リポジトリ。
// 進行中の対局はgame#active#、終局済みの対局はgame#completed#に置く。
type KVSessionRepo struct {
	store Store
}

// NewKVSessionRepo はKVSessionRepoを生成する。
func NewKVSessionRepo(store Store) *KVSessionRepo {
	return &KVSessionRepo{store: store}
}

func (r *KVSessionRepo) get(ctx context.Context, key string) (*model.Session, int64, error) {
	rec, err := r.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("対局の取得に失敗しました: %w", err)
	}
	s := &model.Session{}
	if err := json.Unmarshal(rec.Value, s); err != nil {
		return nil, 0, fmt.Errorf("対局のデコードに失敗しました: %w", err)
	}
	return s, rec.Version, nil
}

// FindActive は進行中の対局とそのVersionを取得する。見つからない場合はnilを返す。
func (r *KVSessionRepo) FindActive(ctx context.Context, id string) (*model.Session, int64, error) {
	return r.get(ctx, ActiveSessionKey(id))
}

// FindCompleted は終局済みの対局を取得する。見つからない場合はnilを返す。
func (r *KVSessionRepo) FindCompleted(ctx context.Context, id string) (*model.Session, error) {
	s, _, err := r.get(ctx, CompletedSessionKey(id))
	return s, err
}

// FindByID は進行中、終局済みの順に対局を探す。見つからない場合はnilを返す。
func (r *KVSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, int64, error) {
	s, v, err := r.FindActive(ctx, id)
	if err != nil || s != nil {
		return s, v, err
	}
	s, err = r.FindCompleted(ctx, id)
	return s, 0, err
}

// SaveActive は進行中の対局を書き込む。
// expectVersionが一致しない場合はErrVersionConflictを返す。新規作成はMustNotExistを指定する。
// 戻り値は書き込んだVersion。
func (r *KVSessionRepo) SaveActive(ctx context.Context, s *model.Session, expectVersion int64) (int64, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("対局のエンコードに失敗しました: %w", err)
	}
	version := int64(1)
	if expectVersion > 0 {
		version = expectVersion + 1
	}
	if err := r.store.Put(ctx, &Record{Key: ActiveSessionKey(s.ID), Value: value, Version: version}, expectVersion); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("対局の保存に失敗しました: %w", err)
	}
	return version, nil
}

// SaveCompleted は終局済みの対局を書き込む。同じ内容の再書き込みは上書きになる。
func (r *KVSessionRepo) SaveCompleted(ctx context.Context, s *model.Session) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("対局のエンコードに失敗しました: %w", err)
	}
	if err := r.store.Put(ctx, &Record{Key: CompletedSessionKey(s.ID), Value: value, Version: 1}, AnyVersion); err != nil {
		return fmt.Errorf("終局済み対局の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteActive は進行中の対局の正本を削除する。
func (r *KVSessionRepo) DeleteActive(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, ActiveSessionKey(id)); err != nil {
		return fmt.Errorf("進行中の対局の削除に失敗しました: %w", err)
	}
	return nil
}

// ListActive は進行中の対局を全て返す。
func (r *KVSessionRepo) ListActive(ctx context.Context) ([]*model.Session, error) {
	recs, err := r.store.Query(ctx, activeSessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("進行中の対局の一覧取得に失敗しました: %w", err)
	}
	out := make([]*model.Session, 0, len(recs))
	for _, rec := range recs {
		s := &model.Session{}
		if err := json.Unmarshal(rec.Value, s); err != nil {
			return nil, fmt.Errorf("対局 %s のデコードに失敗しました: %w", rec.Key, err)
		}
		out = append(out, s)
	}
	return out, nil
}
