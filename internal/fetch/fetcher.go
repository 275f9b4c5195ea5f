// Package fetch performs the network side of interception: outbound requests
// through a shared client, hop-by-hop header hygiene and opaque masking of
// cross-origin no-cors responses.
package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/any-hub/intercept-cache/internal/cache"
)

// Fetcher 发起真实的网络请求。返回 error 表示拿不到任何响应（传输层失败）。
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client 是基于 http.Client 的 Fetcher 实现。
type Client struct {
	http *http.Client
}

// NewClient 包装共享的 http.Client；传入 nil 时使用 http.DefaultClient。
func NewClient(c *http.Client) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{http: c}
}

// Fetch 复制调用方请求并发往上游，对跨源 no-cors 请求返回不透明响应。
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	if out.Header == nil {
		out.Header = http.Header{}
	}
	stripHopByHop(out.Header)

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cache.CanonicalURL(req.URL), err)
	}
	if isOpaqueRequest(req) {
		maskOpaque(resp)
	}
	return resp, nil
}

// IsOpaque 判断响应是否为不透明响应（状态码 0）。
func IsOpaque(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == 0
}

func isOpaqueRequest(req *http.Request) bool {
	if ModeOf(req) != ModeNoCORS {
		return false
	}
	origin := req.Header.Get("Origin")
	return origin != "" && origin != cache.Origin(req.URL)
}

// maskOpaque 抹去状态与响应头，只保留正文。
func maskOpaque(resp *http.Response) {
	resp.StatusCode = 0
	resp.Status = "0"
	resp.Header = http.Header{}
}
