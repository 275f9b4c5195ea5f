package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Entry 是某个 Key 对应响应的不可变快照。Store 只会整体替换 Entry，
// 对外返回的始终是副本，调用方修改副本不会影响存储内容。
type Entry struct {
	Key      Key         `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	Opaque   bool        `json:"opaque"`
	StoredAt time.Time   `json:"stored_at"`
}

// NewEntry 根据响应元信息与已读取的正文构造 Entry，body 会被复制。
func NewEntry(key Key, resp *http.Response, body []byte, opaque bool) Entry {
	entry := Entry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		Opaque:   opaque,
		StoredAt: time.Now().UTC(),
	}
	if entry.Header == nil {
		entry.Header = http.Header{}
	}
	return entry
}

// Clone 返回深拷贝。
func (e Entry) Clone() Entry {
	out := e
	out.Header = e.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Body = append([]byte(nil), e.Body...)
	return out
}

// Response 基于条目构造一个新的 *http.Response，正文是独立的 Reader。
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        statusLine(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func statusLine(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return strconv.Itoa(code)
}
