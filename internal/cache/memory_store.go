package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/maypok86/otter/v2"
)

// memoryStore 基于 otter 的并发 map，不设置容量上限，因此不会发生淘汰。
// 进程退出即丢失，name 仅用于日志与诊断。
type memoryStore struct {
	name  string
	cache *otter.Cache[Key, Entry]
}

// NewMemoryStore 创建一个进程内存储。
func NewMemoryStore(name string) (Store, error) {
	if name == "" {
		return nil, errors.New("store name required")
	}
	c, err := otter.New[Key, Entry](&otter.Options[Key, Entry]{
		InitialCapacity: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &memoryStore{name: name, cache: c}, nil
}

func (m *memoryStore) Name() string { return m.name }

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := e.Clone()
	return &out, nil
}

func (m *memoryStore) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Key == "" {
		return errors.New("cache key required")
	}
	m.cache.Set(entry.Key, entry.Clone())
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.cache.Invalidate(key)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []Key
	for key := range m.cache.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}
