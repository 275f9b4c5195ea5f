package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedBackends = map[string]struct{}{
	"file":   {},
	"sqlite": {},
	"memory": {},
}

const supportedBackendList = "file|sqlite|memory"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := &c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}

	backend := strings.ToLower(strings.TrimSpace(g.StorageBackend))
	if _, ok := supportedBackends[backend]; !ok {
		return newFieldError("Global.StorageBackend", "仅支持 "+supportedBackendList)
	}
	g.StorageBackend = backend

	if backend != "memory" && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if err := validateStoreName(g.StoreName); err != nil {
		return fmt.Errorf("Global.StoreName: %w", err)
	}
	if g.SelfOrigin != "" {
		if err := validateOrigin(g.SelfOrigin); err != nil {
			return fmt.Errorf("Global.SelfOrigin: %w", err)
		}
	}
	for i, h := range g.KeyHeaders {
		if strings.TrimSpace(h) == "" || strings.ContainsAny(h, " :") {
			return newFieldError(fmt.Sprintf("Global.KeyHeaders[%d]", i), "非法请求头名称")
		}
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.DNSRefreshInterval.DurationValue() < 0 {
		return newFieldError("Global.DNSRefreshInterval", "不能为负数")
	}

	return nil
}

func validateStoreName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, `/\ `) || name == "." || name == ".." {
		return errors.New("不允许包含路径分隔符或空格")
	}
	return nil
}

func validateOrigin(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源不应包含路径: %s", raw)
	}
	return nil
}
