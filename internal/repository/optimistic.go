package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/banmen/internal/model"
)

// DefaultOptimisticAttempts は楽観的更新の既定の試行回数。
const DefaultOptimisticAttempts = 3

// MergeFunc は現在の値に自分の差分だけを適用した新しい値を返す。
// existsはレコードが存在したかを表す。存在しない場合のcurrentはゼロ値。
// 競合時は最新の値で再度呼ばれるため、同じ差分を何度適用しても結果が変わらないこと。
type MergeFunc[T any] func(current T, exists bool) (T, error)

// ConflictObserver は楽観的更新の競合を観測する。
type ConflictObserver interface {
	RecordReplicationConflict(key string)
	RecordReplicationExhausted(key string)
}

// Optimistic は楽観的更新の設定。
type Optimistic struct {
	Store       Store
	MaxAttempts int
	Observer    ConflictObserver
}

// UpdateOptimistic はkeyのレコードを読み、mergeで差分を適用し、
// 読んだVersionが変わっていない場合のみ書き込む。
// 競合した場合はレコード全体を読み直して差分を再適用し、MaxAttempts回まで試行する。
// 試行回数を使い切った場合はREPLICATION_CONFLICT_EXHAUSTEDを返す。
//
// Versionを持たない旧形式のレコードは再試行せずに無条件で初期化する。
// 差分の適用で内容が変わらない場合は書き込まない。
// 戻り値は書き込み後（または変更なしの場合は読み取った）値とVersion。
func UpdateOptimistic[T any](ctx context.Context, o Optimistic, key string, merge MergeFunc[T]) (T, int64, error) {
	attempts := o.MaxAttempts
	if attempts < 1 {
		attempts = DefaultOptimisticAttempts
	}
	var zero T
	for attempt := 1; attempt <= attempts; attempt++ {
		var current T
		rec, err := o.Store.Get(ctx, key)
		exists := err == nil
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return zero, 0, err
		default:
			if err := json.Unmarshal(rec.Value, &current); err != nil {
				return zero, 0, fmt.Errorf("%sのデコードに失敗しました: %w", key, err)
			}
		}

		next, err := merge(current, exists)
		if err != nil {
			return zero, 0, err
		}
		value, err := json.Marshal(next)
		if err != nil {
			return zero, 0, fmt.Errorf("%sのエンコードに失敗しました: %w", key, err)
		}

		var expect, version int64
		switch {
		case !exists:
			expect, version = MustNotExist, 1
		case rec.Version == 0:
			expect, version = AnyVersion, 1
		default:
			if bytes.Equal(value, rec.Value) {
				return next, rec.Version, nil
			}
			expect, version = rec.Version, rec.Version+1
		}

		err = o.Store.Put(ctx, &Record{Key: key, Value: value, Version: version}, expect)
		if err == nil {
			return next, version, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, 0, err
		}
		if o.Observer != nil {
			o.Observer.RecordReplicationConflict(key)
		}
	}
	if o.Observer != nil {
		o.Observer.RecordReplicationExhausted(key)
	}
	return zero, 0, model.NewReplicationConflictExhaustedError(key, attempts)
}
