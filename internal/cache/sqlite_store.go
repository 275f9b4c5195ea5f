package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteFile 是 sqlite 后端在存储目录下使用的数据库文件名。
const SQLiteFile = "cache.db"

// sqliteStore 把所有存储名称放在同一个数据库中，按 store_name 列隔离。
// 写连接限制为 1，由 SQLite 串行化并发写入。
type sqliteStore struct {
	name  string
	write *sql.DB
	read  *sql.DB
}

// NewSQLiteStore 打开 basePath/cache.db，执行迁移并返回名为 name 的存储。
// basePath 为 ":memory:" 时使用共享内存数据库，便于测试。
func NewSQLiteStore(basePath, name string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if name == "" {
		return nil, errors.New("store name required")
	}

	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	var dsn string
	if basePath == ":memory:" {
		dsn = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return nil, fmt.Errorf("resolve storage path: %w", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create storage path: %w", err)
		}
		dsn = "file:" + filepath.Join(abs, SQLiteFile) + "?" + pragmas
	}

	write, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &sqliteStore{name: name, write: write, read: read}, nil
}

// runMigrations applies embedded SQL migrations using goose.
func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

func (s *sqliteStore) Name() string { return s.name }

func (s *sqliteStore) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}

func (s *sqliteStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		status   int
		header   string
		body     []byte
		opaque   bool
		storedAt string
	)
	err := s.read.QueryRowContext(ctx,
		`SELECT status, header, body, opaque, stored_at FROM entries WHERE store_name = ? AND cache_key = ?`,
		s.name, string(key),
	).Scan(&status, &header, &body, &opaque, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entry: %w", err)
	}

	entry := &Entry{
		Key:    key,
		Status: status,
		Body:   body,
		Opaque: opaque,
	}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if entry.StoredAt, err = time.Parse(time.RFC3339Nano, storedAt); err != nil {
		return nil, fmt.Errorf("decode stored_at: %w", err)
	}
	return entry, nil
}

func (s *sqliteStore) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Key == "" {
		return errors.New("cache key required")
	}

	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err = s.write.ExecContext(ctx,
		`INSERT INTO entries (store_name, cache_key, status, header, body, opaque, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (store_name, cache_key) DO UPDATE SET
		   status = excluded.status,
		   header = excluded.header,
		   body = excluded.body,
		   opaque = excluded.opaque,
		   stored_at = excluded.stored_at`,
		s.name, string(entry.Key), entry.Status, string(header), body, entry.Opaque,
		storedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.write.ExecContext(ctx,
		`DELETE FROM entries WHERE store_name = ? AND cache_key = ?`, s.name, string(key))
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Keys(ctx context.Context) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT cache_key FROM entries WHERE store_name = ? ORDER BY cache_key`, s.name)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, Key(key))
	}
	return keys, rows.Err()
}
