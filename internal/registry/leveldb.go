package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

type levelStore struct {
	db *leveldb.DB
}

// NewLevelDB 打开（必要时创建）本地 leveldb 注册表。
func NewLevelDB(path string) (*KVRegistry, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &KVRegistry{kind: "leveldb", store: &levelStore{db: db}}, nil
}

func (s *levelStore) get(ctx context.Context, key string) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
	}
	value, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (s *levelStore) putAll(_ context.Context, entries map[string]string) error {
	batch := new(leveldb.Batch)
	for key, value := range entries {
		batch.Put([]byte(key), []byte(value))
	}
	return s.db.Write(batch, nil)
}

func (s *levelStore) close() error {
	return s.db.Close()
}
