package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 由 durationDecodeHook 调用，识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数，拦截网关、缓存存储与日志共享同一份配置。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StorageBackend 取值 file|sqlite|memory。
	StorageBackend string `mapstructure:"StorageBackend"`
	StoragePath    string `mapstructure:"StoragePath"`
	// StoreName 带版本的存储名称，修改后旧条目整体失效。
	StoreName string `mapstructure:"StoreName"`
	// SelfOrigin 是本子系统自身的源，发往该源的请求直接放行。
	SelfOrigin string `mapstructure:"SelfOrigin"`
	// KeyHeaders 额外参与请求身份计算的请求头。
	KeyHeaders []string `mapstructure:"KeyHeaders"`

	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	DNSRefreshInterval Duration `mapstructure:"DNSRefreshInterval"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	// InitialSettings 若非空，启动时作为首条 SET_CONFIG 投递。
	InitialSettings map[string]any `mapstructure:"InitialSettings"`
}

// HasInitialSettings 表示配置文件是否携带了启动时即可下发的设置。
func (c *Config) HasInitialSettings() bool {
	return c != nil && len(c.InitialSettings) > 0
}
