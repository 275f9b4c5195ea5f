package gate

import (
	"net/http"
)

// Transport 是挂在 http.Client 上的拦截入口：可拦截请求交给缓存代理，
// 其余请求原样交给 Base。
type Transport struct {
	Gate *Gate
	Base http.RoundTripper
}

// NewTransport 创建 Transport；base 为空时使用 http.DefaultTransport。
func NewTransport(g *Gate, base http.RoundTripper) *Transport {
	return &Transport{Gate: g, Base: base}
}

// RoundTrip 实现 http.RoundTripper。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Gate != nil {
		if resp, _ := t.Gate.Intercept(req.Context(), req); resp != nil {
			return resp, nil
		}
	}
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
