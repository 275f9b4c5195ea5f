package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/fallback"
	"github.com/any-hub/intercept-cache/internal/fetch"
	"github.com/any-hub/intercept-cache/internal/logging"
	"github.com/any-hub/intercept-cache/internal/settings"
	"github.com/any-hub/intercept-cache/internal/telemetry"
)

// CacheHeader 标记响应来自缓存（HIT）还是网络（MISS），仅供诊断。
const CacheHeader = "X-Cache"

// Options 汇总 Handler 依赖。
type Options struct {
	Fetcher    fetch.Fetcher
	Store      cache.Store
	Settings   *settings.Cell[settings.Settings]
	Logger     *logrus.Logger
	Metrics    *telemetry.Metrics
	KeyHeaders []string
}

// Handler 负责 orchestrate “等待配置 → 缓存命中 → 回源写缓存 → 离线兜底” 的全流程。
// 同一 Key 的并发未命中不会合并，各自回源，最后完成的写入生效。
type Handler struct {
	fetcher    fetch.Fetcher
	store      cache.Store
	settings   *settings.Cell[settings.Settings]
	logger     *logrus.Logger
	metrics    *telemetry.Metrics
	keyHeaders []string
}

// NewHandler constructs a proxy handler with shared fetcher/logger/store.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		fetcher:    opts.Fetcher,
		store:      opts.Store,
		settings:   opts.Settings,
		logger:     logger,
		metrics:    opts.Metrics,
		keyHeaders: append([]string(nil), opts.KeyHeaders...),
	}
}

// Store 返回 Handler 使用的缓存存储。
func (h *Handler) Store() cache.Store {
	return h.store
}

// Handle 执行配置等待、缓存查找、回源与条件写入，始终返回一个响应。
// 存储读写失败只记录日志：读失败按未命中处理，写失败不影响返回给调用方的响应。
func (h *Handler) Handle(ctx context.Context, req *http.Request) *http.Response {
	started := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	if h.settings != nil {
		if _, err := h.settings.Await(ctx); err != nil {
			// 调用方放弃等待，没有可返回的网络响应。
			h.logResult(req, "", 0, false, started, err)
			return fallback.Offline(req)
		}
	}

	key := cache.KeyFor(req, h.keyHeaders)

	entry, err := h.store.Get(ctx, key)
	switch {
	case err == nil:
		h.metrics.Hit()
		resp := entry.Response(req)
		if !entry.Opaque {
			resp.Header.Set(CacheHeader, "HIT")
		}
		h.logResult(req, key, resp.StatusCode, true, started, nil)
		return resp
	case errors.Is(err, cache.ErrNotFound):
		// miss, continue
	default:
		h.metrics.StoreError("get")
		h.logger.WithError(err).
			WithFields(logging.RequestFields(req.Method, req.URL.String(), key.String(), "intercept", false)).
			Warn("cache_get_failed")
	}
	h.metrics.Miss()

	return h.fetchAndStore(ctx, req, key, started)
}

func (h *Handler) fetchAndStore(ctx context.Context, req *http.Request, key cache.Key, started time.Time) *http.Response {
	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		h.metrics.Fallback()
		h.logResult(req, key, 0, false, started, err)
		return fallback.Offline(req)
	}

	if !isCacheable(resp) {
		h.logResult(req, key, resp.StatusCode, false, started, nil)
		return resp
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		h.metrics.Fallback()
		h.logResult(req, key, resp.StatusCode, false, started, err)
		return fallback.Offline(req)
	}

	opaque := fetch.IsOpaque(resp)
	if !opaque && resp.Header.Get("Content-Type") == "" {
		resp.Header.Set("Content-Type", inferContentType(req.URL))
	}

	// 写入不受调用方取消影响，响应已经完整拿到。
	stored := cache.NewEntry(key, resp, body, opaque)
	if err := h.store.Put(context.WithoutCancel(ctx), stored); err != nil {
		h.metrics.StoreError("put")
		h.logger.WithError(err).
			WithFields(logging.RequestFields(req.Method, req.URL.String(), key.String(), "intercept", false)).
			Warn("cache_put_failed")
	} else {
		h.metrics.Stored()
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Length")
	if !opaque {
		resp.Header.Set(CacheHeader, "MISS")
	}
	h.logResult(req, key, resp.StatusCode, false, started, nil)
	return resp
}

// isCacheable 仅接受 2xx 与不透明响应。
func isCacheable(resp *http.Response) bool {
	if fetch.IsOpaque(resp) {
		return true
	}
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (h *Handler) logResult(
	req *http.Request,
	key cache.Key,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(req.Method, req.URL.String(), key.String(), "intercept", cacheHit)
	fields["action"] = "proxy"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID := req.Header.Get("X-Request-ID"); requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
