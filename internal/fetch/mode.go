package fetch

import (
	"net/http"
	"strings"
)

// Mode 对应请求的 fetch mode，来自 Sec-Fetch-Mode 请求头。
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

// ModeHeader 是携带 fetch mode 的请求头。
const ModeHeader = "Sec-Fetch-Mode"

// ModeOf 读取请求的 fetch mode，缺省或无法识别时视为 cors。
func ModeOf(req *http.Request) Mode {
	if req == nil {
		return ModeCORS
	}
	switch m := Mode(strings.ToLower(strings.TrimSpace(req.Header.Get(ModeHeader)))); m {
	case ModeNavigate, ModeNoCORS, ModeSameOrigin:
		return m
	default:
		return ModeCORS
	}
}
