package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore はSQLiteのkv_recordsテーブルを使ったStore。
// 単一ノードでの運用やローカル開発向け。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore はpathのSQLiteデータベースを開き、スキーマを適用する。
// WALモードと書き込み接続1本の構成にする。
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	rec := &Record{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_records WHERE key = ?`,
		key,
	).Scan(&rec.Value, &rec.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifySQLiteError(fmt.Errorf("レコードの取得に失敗しました: %w", err))
	}
	return rec, nil
}

func (s *SQLiteStore) Query(ctx context.Context, prefix string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, version FROM kv_records
		 WHERE substr(key, 1, length(?1)) = ?1
		 ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, classifySQLiteError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
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
		return nil, classifySQLiteError(fmt.Errorf("レコードの検索に失敗しました: %w", err))
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record, expectVersion int64) error {
	var (
		res sql.Result
		err error
	)
	switch expectVersion {
	case AnyVersion:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv_records (key, value, version) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET
			     value = excluded.value, version = excluded.version,
			     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
			rec.Key, rec.Value, rec.Version,
		)
	case MustNotExist:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv_records (key, value, version) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO NOTHING`,
			rec.Key, rec.Value, rec.Version,
		)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv_records SET value = ?, version = ?,
			     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			 WHERE key = ? AND version = ?`,
			rec.Value, rec.Version, rec.Key, expectVersion,
		)
	}
	if err != nil {
		return classifySQLiteError(fmt.Errorf("レコードの書き込みに失敗しました: %w", err))
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

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ?`, key); err != nil {
		return classifySQLiteError(fmt.Errorf("レコードの削除に失敗しました: %w", err))
	}
	return nil
}

// classifySQLiteError はロック競合をTransientErrorで包む。
func classifySQLiteError(err error) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && (sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked) {
		return &TransientError{Err: err}
	}
	return err
}
