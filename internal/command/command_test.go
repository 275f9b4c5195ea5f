package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/settings"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		wantTyp string
	}{
		{"set config", `{"type":"SET_CONFIG","config":{"theme":"dark"}}`, TypeSetConfig},
		{"set config without payload", `{"type":"SET_CONFIG"}`, TypeSetConfig},
		{"clear cache", `{"type":"CLEAR_CACHE"}`, TypeClearCache},
		{"unknown tag", `{"type":"REFRESH"}`, "REFRESH"},
		{"missing tag", `{"config":{}}`, ""},
		{"lowercase tag", `{"type":"clear_cache"}`, "clear_cache"},
		{"malformed json", `{"type":`, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := Decode([]byte(tc.raw))
			if msg.Type() != tc.wantTyp {
				t.Fatalf("type = %q, want %q", msg.Type(), tc.wantTyp)
			}
		})
	}

	msg, ok := Decode([]byte(`{"type":"SET_CONFIG","config":{"theme":"dark","bar":{"height":32}}}`)).(SetConfig)
	if !ok {
		t.Fatalf("expected SetConfig")
	}
	if msg.Settings["theme"] != "dark" {
		t.Fatalf("payload not decoded: %v", msg.Settings)
	}
	if _, ok := Decode([]byte(`{"type":"NOPE"}`)).(Unknown); !ok {
		t.Fatalf("unrecognized tags decode to Unknown")
	}
}

func TestDispatchSetConfigResolvesCell(t *testing.T) {
	cell := settings.NewCell[settings.Settings]()
	d := NewDispatcher(cell, newStore(t), quietLogger(), nil)

	if err := d.Dispatch(context.Background(), Decode([]byte(`{"type":"SET_CONFIG","config":{"theme":"dark"}}`))); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	got, ok := cell.Peek()
	if !ok || got["theme"] != "dark" {
		t.Fatalf("configuration not delivered: %v %v", got, ok)
	}
}

func TestDispatchClearCacheEmptiesStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		seed(t, store, fmt.Sprintf("GET https://weather.example/day/%d", i))
	}
	d := NewDispatcher(settings.NewCell[settings.Settings](), store, quietLogger(), nil)

	if err := d.Dispatch(ctx, ClearCache{}); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys error: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("store should be empty once dispatch returns, got %d keys", len(keys))
	}

	seed(t, store, "GET https://weather.example/again")
	if n, _ := cache.Len(ctx, store); n != 1 {
		t.Fatalf("store must stay usable after clearing, got %d", n)
	}
}

func TestDispatchUnknownIsLoggedAndDiscarded(t *testing.T) {
	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cell := settings.NewCell[settings.Settings]()
	store := newStore(t)
	seed(t, store, "GET https://weather.example/api")
	d := NewDispatcher(cell, store, logger, nil)

	messages := [][]byte{
		[]byte(`{"type":"REFRESH"}`),
		[]byte(`not json`),
		[]byte(`{"type":"SET_CONFIG","config":{"theme":"light"}}`),
	}
	for _, raw := range messages {
		if err := d.Dispatch(context.Background(), Decode(raw)); err != nil {
			t.Fatalf("dispatch %s: %v", raw, err)
		}
	}

	if !strings.Contains(logs.String(), "unknown_message_type") || !strings.Contains(logs.String(), `"type":"REFRESH"`) {
		t.Fatalf("unknown message should be logged, got %s", logs.String())
	}
	if got, ok := cell.Peek(); !ok || got["theme"] != "light" {
		t.Fatalf("later messages must still be processed")
	}
	if n, _ := cache.Len(context.Background(), store); n != 1 {
		t.Fatalf("unknown messages must not touch the store")
	}
}

func TestDispatchNilMessage(t *testing.T) {
	d := NewDispatcher(settings.NewCell[settings.Settings](), newStore(t), quietLogger(), nil)
	if err := d.Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("nil message should be discarded, got %v", err)
	}
}

func TestInvalidateAllReportsDeleteErrors(t *testing.T) {
	store := &brokenDeleteStore{Store: newStore(t)}
	seed(t, store, "GET https://a.example/")
	if _, err := InvalidateAll(context.Background(), store); err == nil {
		t.Fatalf("expected delete error")
	}
}

func TestInvalidateAllCounts(t *testing.T) {
	store := newStore(t)
	seed(t, store, "GET https://a.example/")
	seed(t, store, "GET https://b.example/")
	n, err := InvalidateAll(context.Background(), store)
	if err != nil || n != 2 {
		t.Fatalf("InvalidateAll = %d, %v", n, err)
	}
}

func newStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.Open(cache.Options{Backend: cache.BackendFile, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store cache.Store, key string) {
	t.Helper()
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	if err := store.Put(context.Background(), cache.NewEntry(cache.Key(key), resp, []byte("x"), false)); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type brokenDeleteStore struct {
	cache.Store
}

func (brokenDeleteStore) Delete(context.Context, cache.Key) error {
	return errors.New("read-only filesystem")
}
