package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	entrySuffix    = ".entry"
	hashedPrefix   = "h-"
	tempPattern    = ".cache-*"
	maxEncodedName = 200
)

// NewFileStore 以 basePath/name 为根目录构建磁盘缓存，整个进程复用一份实例。
func NewFileStore(basePath, name string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid store name: %q", name)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	root := filepath.Join(abs, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		name:  name,
		root:  root,
		locks: make(map[Key]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一 Key 的写入/删除，最后完成的写入生效。
type fileStore struct {
	name string
	root string

	mu    sync.Mutex
	locks map[Key]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Name() string { return s.name }

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := s.entryPath(key)
	entry, err := readEntryFile(filePath)
	if err != nil {
		return nil, err
	}
	if entry.Key != key {
		// 哈希文件名冲突时按未命中处理
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *fileStore) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Key == "" {
		return errors.New("cache key required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	unlock := s.lockEntry(entry.Key)
	defer unlock()

	tempFile, err := os.CreateTemp(s.root, tempPattern)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(data))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, s.entryPath(entry.Key)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockEntry(key)
	defer unlock()

	if err := os.Remove(s.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Keys(ctx context.Context) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if item.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		stem := strings.TrimSuffix(name, entrySuffix)
		if strings.HasPrefix(stem, hashedPrefix) {
			entry, err := readEntryFile(filepath.Join(s.root, name))
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			keys = append(keys, entry.Key)
			continue
		}
		decoded, err := base64.URLEncoding.DecodeString(stem)
		if err != nil {
			continue
		}
		keys = append(keys, Key(decoded))
	}
	return keys, nil
}

func (s *fileStore) lockEntry(key Key) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// entryPath 将 Key 编码为文件名：优先使用 URL-safe base64，过长时退化为 sha256。
func (s *fileStore) entryPath(key Key) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(key))
	if len(encoded) > maxEncodedName {
		sum := sha256.Sum256([]byte(key))
		encoded = hashedPrefix + hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.root, encoded+entrySuffix)
}

func readEntryFile(filePath string) (*Entry, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", filepath.Base(filePath), err)
	}
	return &entry, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
