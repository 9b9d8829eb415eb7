package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemoryStore はプロセス内のマップを使ったStore。開発環境とテストで使う。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Query(ctx context.Context, prefix string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for k, rec := range s.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.records[rec.Key]
	if err := checkVersion(exists, cur.Version, expectVersion); err != nil {
		return err
	}
	s.records[rec.Key] = *copyRecord(*rec)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func copyRecord(rec Record) *Record {
	return &Record{Key: rec.Key, Value: slices.Clone(rec.Value), Version: rec.Version}
}
