// Package gate decides, per outgoing request, whether the interception cache
// handles it or the request goes to default network handling untouched.
package gate

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/fetch"
)

// Decision 描述拦截判定结果。
type Decision string

const (
	DecisionIntercept     Decision = "intercept"
	PassthroughMethod     Decision = "passthrough_method"
	PassthroughNavigate   Decision = "passthrough_navigate"
	PassthroughSameOrigin Decision = "passthrough_same_origin"
)

// Intercepted reports whether the request is handed to the cache proxy.
func (d Decision) Intercepted() bool {
	return d == DecisionIntercept
}

// Request 是判定所需的最小请求视图。
type Request struct {
	Method string
	URL    *url.URL
	Mode   fetch.Mode
}

// FromHTTP 从 *http.Request 提取判定字段。
func FromHTTP(req *http.Request) Request {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return Request{
		Method: method,
		URL:    req.URL,
		Mode:   fetch.ModeOf(req),
	}
}

// Proxy 是缓存代理的最小接口。
type Proxy interface {
	Handle(ctx context.Context, req *http.Request) *http.Response
}

// Resolver 返回当前生效的缓存代理；返回 nil 表示尚无实例接管拦截。
type Resolver interface {
	Proxy() Proxy
}

// Gate 按固定规则判定请求是否被拦截。
type Gate struct {
	selfOrigin string
	resolver   Resolver
}

// New 创建 Gate。selfOrigin 为空时不做同源放行判定。
func New(selfOrigin string, resolver Resolver) *Gate {
	return &Gate{
		selfOrigin: canonicalOrigin(selfOrigin),
		resolver:   resolver,
	}
}

// canonicalOrigin 与请求侧共用 cache.Origin，保证默认端口与大小写写法一致。
func canonicalOrigin(raw string) string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	return cache.Origin(u)
}

// Decide 依次检查方法、导航请求与同源请求，全部不命中时拦截。
func (g *Gate) Decide(req Request) Decision {
	// net/http 将空方法视为 GET
	if req.Method != http.MethodGet && req.Method != "" {
		return PassthroughMethod
	}
	if req.Mode == fetch.ModeNavigate {
		return PassthroughNavigate
	}
	if g.selfOrigin != "" && cache.Origin(req.URL) == g.selfOrigin {
		return PassthroughSameOrigin
	}
	return DecisionIntercept
}

// Intercept 对可拦截请求返回代理响应；返回 nil 时调用方应按默认方式处理请求。
func (g *Gate) Intercept(ctx context.Context, req *http.Request) (*http.Response, Decision) {
	decision := g.Decide(FromHTTP(req))
	if !decision.Intercepted() {
		return nil, decision
	}
	var proxy Proxy
	if g.resolver != nil {
		proxy = g.resolver.Proxy()
	}
	if proxy == nil {
		return nil, decision
	}
	return proxy.Handle(ctx, req), decision
}
