// Package fallback synthesizes the response served when no network response
// could be obtained at all.
package fallback

import (
	"io"
	"net/http"
	"strings"
)

// OfflineBody 是离线兜底响应的固定正文。
const OfflineBody = "Offline or network error occurred."

// Offline 返回固定的 503 纯文本响应。仅用于传输层失败（拿不到任何响应），
// 上游返回的 4xx/5xx 不经过这里。
func Offline(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(OfflineBody)),
		ContentLength: int64(len(OfflineBody)),
		Request:       req,
	}
}
