package repository

import (
	"context"
	"errors"
)

// ErrNotFound はキーに対応するレコードが存在しないことを示す。
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict は条件付き書き込みの条件が満たされなかったことを示す。
var ErrVersionConflict = errors.New("version conflict")

const (
	// AnyVersion は無条件の書き込みを表す。
	AnyVersion int64 = -1
	// MustNotExist はキーが存在しない場合のみ書き込むことを表す。
	MustNotExist int64 = -2
)

// Record はキーバリューストアの1レコード。
// Versionは書き込み側が管理する楽観的排他制御のカウンタで、0は旧形式（カウンタなし）を表す。
type Record struct {
	Key     string
	Value   []byte
	Version int64
}

// Store はキーバリューストアのインターフェース。
// 複数キーにまたがるトランザクションは提供しない。
type Store interface {
	// Get はキーのレコードを取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) (*Record, error)
	// Query はキーが指定の接頭辞で始まるレコードをキー順に返す。
	Query(ctx context.Context, prefix string) ([]*Record, error)
	// Put はレコードを書き込む。
	// expectVersionがAnyVersionなら無条件、MustNotExistならキーが存在しない場合のみ、
	// それ以外は保存済みのVersionが一致する場合のみ書き込む。
	// 条件を満たさない場合はErrVersionConflictを返す。
	Put(ctx context.Context, rec *Record, expectVersion int64) error
	// Delete はキーのレコードを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// TransientError はスループット制限や接続断など、再試行で回復しうるストアのエラー。
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient store error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient はエラーが再試行可能なストアのエラーかを返す。
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// checkVersion はexpectVersionの条件を検証する。existsは保存済みレコードの有無。
func checkVersion(exists bool, current, expectVersion int64) error {
	switch {
	case expectVersion == AnyVersion:
		return nil
	case expectVersion == MustNotExist:
		if exists {
			return ErrVersionConflict
		}
		return nil
	case !exists || current != expectVersion:
		return ErrVersionConflict
	}
	return nil
}
