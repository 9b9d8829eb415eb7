package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore はPostgreSQLのkv_recordsテーブルを使ったStore。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	rec := &Record{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_records WHERE key = $1`,
		key,
	).Scan(&rec.Value, &rec.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("レコードの取得に失敗しました: %w", err))
	}
	return rec, nil
}

func (s *PostgresStore) Query(ctx context.Context, prefix string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, version FROM kv_records
		 WHERE left(key, length($1)) = $1
		 ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.Version); err != nil {
			return nil, fmt.Errorf("レコードの読み取りに失敗しました: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
	}
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record, expectVersion int64) error {
	var (
		res sql.Result
		err error
	)
	switch expectVersion {
	case AnyVersion:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv_records (key, value, version, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (key) DO UPDATE SET
			     value = EXCLUDED.value, version = EXCLUDED.version, updated_at = now()`,
			rec.Key, rec.Value, rec.Version,
		)
	case MustNotExist:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv_records (key, value, version, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (key) DO NOTHING`,
			rec.Key, rec.Value, rec.Version,
		)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv_records SET value = $2, version = $3, updated_at = now()
			 WHERE key = $1 AND version = $4`,
			rec.Key, rec.Value, rec.Version, expectVersion,
		)
	}
	if err != nil {
		return classifyPostgresError(fmt.Errorf("レコードの書き込みに失敗しました: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("書き込み件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return classifyPostgresError(fmt.Errorf("レコードの削除に失敗しました: %w", err))
	}
	return nil
}

// classifyPostgresError は再試行で回復しうるエラーをTransientErrorで包む。
func classifyPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection_exception, insufficient_resources, operator_intervention
			return &TransientError{Err: err}
		}
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return &TransientError{Err: err}
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &TransientError{Err: err}
	}
	return err
}
