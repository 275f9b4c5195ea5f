package proxy

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// inferContentType 根据 URL 路径扩展名推断缓存条目的 Content-Type。
func inferContentType(u *url.URL) string {
	if u == nil {
		return "application/octet-stream"
	}
	clean := strings.ToLower(path.Base(u.Path))
	switch {
	case strings.HasSuffix(clean, ".tar.gz"), strings.HasSuffix(clean, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(clean, ".json"):
		return "application/json"
	}
	if ext := path.Ext(clean); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}
