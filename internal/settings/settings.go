package settings

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Settings 是宿主通过 SET_CONFIG 下发的配置，对缓存层而言是不透明的键值集合。
// 当前缓存策略并不读取其中的字段，仅以“是否已下发”作为闸门。
type Settings map[string]any

// Clone 返回浅拷贝，避免调用方持有的 map 被后续修改影响。
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Decode 将 Settings 解码到结构体，字段名按 mapstructure 规则匹配（忽略大小写）。
func (s Settings) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("build settings decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}
