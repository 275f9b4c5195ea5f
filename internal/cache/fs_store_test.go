package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyWithContextStopsOnInterruptedStream(t *testing.T) {
	reader := &flakyReader{
		payload:   []byte("partial_data"),
		failAfter: 5,
	}
	var dst bytes.Buffer
	n, err := copyWithContext(context.Background(), &dst, reader)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected interrupted stream error, got %v", err)
	}
	if n != 5 || dst.String() != "parti" {
		t.Fatalf("unexpected partial copy: n=%d data=%q", n, dst.String())
	}
}

func TestCopyWithContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := copyWithContext(ctx, io.Discard, bytes.NewReader([]byte("data"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileStorePutLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t, BackendFile, t.TempDir(), DefaultName)
	fs := store.(*fileStore)
	key := Key("GET https://weather.example/api")
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}

	if err := store.Put(context.Background(), NewEntry(key, resp, []byte("ok"), false)); err != nil {
		t.Fatalf("put error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = store.Put(ctx, NewEntry(key, resp, []byte("canceled"), false))

	matches, _ := filepath.Glob(filepath.Join(fs.root, ".cache-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files should be cleaned up, found %v", matches)
	}
	if _, err := os.Stat(fs.entryPath(key)); err != nil {
		t.Fatalf("committed entry should remain: %v", err)
	}
	got, err := store.Get(context.Background(), key)
	if err != nil || string(got.Body) != "ok" {
		t.Fatalf("canceled write must not replace the entry: %v", err)
	}
}

func TestFileStoreCorruptEntryIsAnError(t *testing.T) {
	store := newTestStore(t, BackendFile, t.TempDir(), DefaultName)
	fs := store.(*fileStore)
	key := Key("GET https://weather.example/corrupt")
	if err := os.WriteFile(fs.entryPath(key), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := store.Get(context.Background(), key); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt entries should surface a decode error, got %v", err)
	}
}

type flakyReader struct {
	payload   []byte
	failAfter int
	readBytes int
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.readBytes >= f.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	remaining := f.failAfter - f.readBytes
	if remaining > len(p) {
		remaining = len(p)
	}
	copy(p[:remaining], f.payload[f.readBytes:f.readBytes+remaining])
	f.readBytes += remaining
	return remaining, nil
}
