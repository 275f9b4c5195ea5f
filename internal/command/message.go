// Package command decodes and dispatches the control messages a host sends to
// the interception cache: configuration delivery and wholesale invalidation.
package command

import (
	"github.com/tidwall/gjson"

	"github.com/any-hub/intercept-cache/internal/settings"
)

// 消息类型标签。
const (
	TypeSetConfig  = "SET_CONFIG"
	TypeClearCache = "CLEAR_CACHE"
)

// Message 是封闭的消息变体：SetConfig、ClearCache 或 Unknown。
type Message interface {
	Type() string
	isMessage()
}

// SetConfig 下发一次性配置。
type SetConfig struct {
	Settings settings.Settings
}

// ClearCache 请求清空缓存存储。
type ClearCache struct{}

// Unknown 是无法识别的消息，保留原始内容用于日志。
type Unknown struct {
	Tag string
	Raw []byte
}

func (SetConfig) Type() string  { return TypeSetConfig }
func (ClearCache) Type() string { return TypeClearCache }
func (u Unknown) Type() string  { return u.Tag }

func (SetConfig) isMessage()  {}
func (ClearCache) isMessage() {}
func (Unknown) isMessage()    {}

// Decode 读取 type 标签并构造消息；非法 JSON 与未知标签都解码为 Unknown。
func Decode(raw []byte) Message {
	if !gjson.ValidBytes(raw) {
		return Unknown{Raw: append([]byte(nil), raw...)}
	}
	doc := gjson.ParseBytes(raw)
	tag := doc.Get("type").String()
	switch tag {
	case TypeSetConfig:
		return SetConfig{Settings: decodeSettings(doc.Get("config"))}
	case TypeClearCache:
		return ClearCache{}
	default:
		return Unknown{Tag: tag, Raw: append([]byte(nil), raw...)}
	}
}

// decodeSettings 仅接受 JSON 对象，其余形态视为空配置。
func decodeSettings(v gjson.Result) settings.Settings {
	if !v.IsObject() {
		return settings.Settings{}
	}
	m, ok := v.Value().(map[string]interface{})
	if !ok {
		return settings.Settings{}
	}
	return settings.Settings(m)
}
