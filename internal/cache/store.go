package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store 负责管理缓存条目的读写。每个 Key 至多对应一个 Entry，写入即整体替换。
type Store interface {
	// Get 返回 Key 对应条目的副本。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (*Entry, error)

	// Put 以 entry.Key 为键写入条目，已存在的条目被整体替换。
	Put(ctx context.Context, entry Entry) error

	// Delete 删除单个条目，条目不存在时不视为错误。
	Delete(ctx context.Context, key Key) error

	// Keys 枚举当前存储下的全部 Key。
	Keys(ctx context.Context) ([]Key, error)

	// Name 返回存储名称（含版本），更换名称即放弃旧条目。
	Name() string

	// Close 释放底层资源。
	Close() error
}

// Backend 标识存储实现。
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// DefaultName 是默认的存储名称。
const DefaultName = "v1"

// Options 描述 Open 所需的参数。
type Options struct {
	Backend Backend
	// Path 是 file/sqlite 后端的根目录，memory 后端忽略该字段。
	Path string
	// Name 是存储名称，为空时使用 DefaultName。
	Name string
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrUnknownBackend 表示配置了未支持的存储后端。
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Open 根据 Options 选择后端并打开存储，整个进程复用一份实例。
func Open(opts Options) (Store, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = DefaultName
	}
	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendFile, "":
		return NewFileStore(opts.Path, name)
	case BackendSQLite:
		return NewSQLiteStore(opts.Path, name)
	case BackendMemory:
		return NewMemoryStore(name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}

// Len 统计存储中的条目数量，供诊断接口使用。
func Len(ctx context.Context, store Store) (int, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
