package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// Key 是请求身份的规范化形式：`METHOD URL` 后接可选的 ` header=value` 片段。
// 相同方法、规范化 URL 与参与计算的请求头必然得到同一个 Key。
type Key string

// NewKey 由请求方法、URL 与可选的请求头列表计算 Key。
// URL 会被规范化：scheme/host 小写、去掉默认端口、空路径补 /、丢弃 fragment。
func NewKey(method string, u *url.URL, header http.Header, keyHeaders []string) Key {
	var b strings.Builder
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = http.MethodGet
	}
	b.WriteString(m)
	b.WriteByte(' ')
	b.WriteString(CanonicalURL(u))
	for _, name := range keyHeaders {
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(name))
		b.WriteByte('=')
		if header != nil {
			b.WriteString(strings.Join(header.Values(name), ","))
		}
	}
	return Key(b.String())
}

// KeyFor 是 NewKey 针对 *http.Request 的便捷封装。
func KeyFor(req *http.Request, keyHeaders []string) Key {
	return NewKey(req.Method, req.URL, req.Header, keyHeaders)
}

// String 返回 Key 的字符串形式。
func (k Key) String() string {
	return string(k)
}

// CanonicalURL 返回用于缓存身份的 URL 字符串。
func CanonicalURL(u *url.URL) string {
	if u == nil {
		return "/"
	}
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = canonicalHost(c.Scheme, c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return c.String()
}

// Origin 返回 scheme://host[:port] 形式的源，默认端口会被省略。
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + canonicalHost(scheme, u.Host)
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
