package lifecycle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/gate"
)

func TestActivateSupersedesPreviousInstance(t *testing.T) {
	c := newTestController(t, &stubFetcher{})
	if c.Active() != nil || c.Proxy() != nil {
		t.Fatalf("nothing should be active before activation")
	}

	first := c.Install("v1")
	if c.Active() != nil {
		t.Fatalf("install alone must not activate")
	}
	if prev := c.Activate(first); prev != nil {
		t.Fatalf("first activation supersedes nothing")
	}

	second := c.Install("v2")
	if second.ID == first.ID {
		t.Fatalf("instances need distinct ids")
	}
	if prev := c.Activate(second); prev != first {
		t.Fatalf("expected v1 to be superseded")
	}
	if c.Active() != second {
		t.Fatalf("v2 should be active")
	}
	if c.Proxy() != gate.Proxy(second.Proxy) {
		t.Fatalf("resolver should return the active proxy")
	}
}

func TestDeliverTargetsActiveInstance(t *testing.T) {
	c := newTestController(t, &stubFetcher{})
	if err := c.Deliver(context.Background(), []byte(`{"type":"CLEAR_CACHE"}`)); !errors.Is(err, ErrNoActiveInstance) {
		t.Fatalf("expected ErrNoActiveInstance, got %v", err)
	}

	old := c.Install("v1")
	c.Activate(old)
	next := c.Install("v2")
	c.Activate(next)

	if err := c.Deliver(context.Background(), []byte(`{"type":"SET_CONFIG","config":{"theme":"dark"}}`)); err != nil {
		t.Fatalf("deliver error: %v", err)
	}
	if !next.Settings.Resolved() {
		t.Fatalf("active instance should receive configuration")
	}
	if old.Settings.Resolved() {
		t.Fatalf("superseded instance must not receive messages")
	}
}

func TestInstancesShareStore(t *testing.T) {
	fetcher := &stubFetcher{}
	c := newTestController(t, fetcher)
	ctx := context.Background()

	v1 := c.Install("v1")
	c.Activate(v1)
	_ = c.Deliver(ctx, []byte(`{"type":"SET_CONFIG","config":{}}`))
	resp := c.Proxy().Handle(ctx, httptest.NewRequest(http.MethodGet, "https://weather.example/api", nil))
	resp.Body.Close()

	v2 := c.Install("v2")
	c.Activate(v2)
	_ = c.Deliver(ctx, []byte(`{"type":"SET_CONFIG","config":{}}`))
	resp = c.Proxy().Handle(ctx, httptest.NewRequest(http.MethodGet, "https://weather.example/api", nil))
	resp.Body.Close()

	if fetcher.calls != 1 {
		t.Fatalf("entries stored by v1 should serve v2, fetches=%d", fetcher.calls)
	}
	if c.Store() == nil {
		t.Fatalf("store should be exposed")
	}
}

func newTestController(t *testing.T, f *stubFetcher) *Controller {
	t.Helper()
	store, err := cache.Open(cache.Options{Backend: cache.BackendMemory})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewController(Deps{Fetcher: f, Store: store, Logger: logger})
}

type stubFetcher struct {
	calls int
}

func (f *stubFetcher) Fetch(context.Context, *http.Request) (*http.Response, error) {
	f.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil
}
