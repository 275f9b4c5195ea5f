package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/dnscache"

	"github.com/any-hub/intercept-cache/internal/config"
)

func TestFetchStripsHopByHopHeaders(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, upstream.URL+"/api", nil)
	req.Header.Set("Connection", "X-Secret")
	req.Header.Set("X-Secret", "1")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Accept", "application/json")

	resp, err := NewClient(upstream.Client()).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if got.Get("Proxy-Authorization") != "" || got.Get("X-Secret") != "" {
		t.Fatalf("hop-by-hop headers leaked upstream: %v", got)
	}
	if got.Get("Accept") != "application/json" {
		t.Fatalf("end-to-end header dropped: %v", got)
	}
	if req.Header.Get("Proxy-Authorization") == "" {
		t.Fatalf("caller request must not be mutated")
	}
}

func TestFetchMasksCrossOriginNoCORS(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("pixels"))
	}))
	defer upstream.Close()

	testCases := []struct {
		name       string
		mode       string
		origin     string
		wantStatus int
	}{
		{"cross origin no-cors", "no-cors", "https://app.example", 0},
		{"no-cors without origin", "no-cors", "", http.StatusNotFound},
		{"cors cross origin", "cors", "https://app.example", http.StatusNotFound},
		{"no-cors same origin", "no-cors", upstream.URL, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, upstream.URL+"/logo.png", nil)
			req.Header.Set(ModeHeader, tc.mode)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			resp, err := NewClient(upstream.Client()).Fetch(context.Background(), req)
			if err != nil {
				t.Fatalf("fetch error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "pixels" {
				t.Fatalf("body should be retained, got %q", body)
			}
			if IsOpaque(resp) && len(resp.Header) != 0 {
				t.Fatalf("opaque response must not expose headers: %v", resp.Header)
			}
		})
	}
}

func TestFetchReturnsTransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	req := httptest.NewRequest(http.MethodGet, target+"/gone", nil)
	if _, err := NewClient(&http.Client{Timeout: time.Second}).Fetch(context.Background(), req); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestModeOf(t *testing.T) {
	testCases := []struct {
		header string
		want   Mode
	}{
		{"navigate", ModeNavigate},
		{"NAVIGATE", ModeNavigate},
		{"no-cors", ModeNoCORS},
		{"same-origin", ModeSameOrigin},
		{"cors", ModeCORS},
		{"", ModeCORS},
		{"websocket", ModeCORS},
	}
	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodGet, "https://weather.example/", nil)
		if tc.header != "" {
			req.Header.Set(ModeHeader, tc.header)
		}
		if got := ModeOf(req); got != tc.want {
			t.Fatalf("ModeOf(%q) = %s, want %s", tc.header, got, tc.want)
		}
	}
}

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg, nil)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
	if NewUpstreamClient(nil, nil).Timeout != defaultTimeout {
		t.Fatalf("nil config should use default timeout")
	}
}

func TestNewTransportWithResolver(t *testing.T) {
	plain := NewTransport(nil)
	cached := NewTransport(&dnscache.Resolver{})
	if plain.DialContext == nil || cached.DialContext == nil {
		t.Fatalf("DialContext should always be set")
	}
	if plain.MaxIdleConnsPerHost != 100 {
		t.Fatalf("MaxIdleConnsPerHost = %d, want 100", plain.MaxIdleConnsPerHost)
	}
}

func TestStartDNSRefreshStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartDNSRefresh(ctx, &dnscache.Resolver{}, 10*time.Millisecond)
	StartDNSRefresh(ctx, nil, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}

	got := dst.Values("X-Test-Header")
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}
