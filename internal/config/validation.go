package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别 "+g.LogLevel)
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.WaitTimeout.DurationValue() < 0 {
		return newFieldError("Global.WaitTimeout", "不能为负数")
	}
	if g.PreloadConcurrency <= 0 {
		return newFieldError("Global.PreloadConcurrency", "必须大于 0")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Terminology {
		term := &c.Terminology[i]
		if term.URL == "" {
			return newFieldError(termField(term.Name, "URL"), "不能为空")
		}
		if term.Name == "" {
			return newFieldError(termField("", "Name"), "不能为空")
		}
		key := strings.ToLower(term.Name)
		if _, exists := seenNames[key]; exists {
			return newFieldError(termField(term.Name, "Name"), "重复")
		}
		seenNames[key] = struct{}{}

		if err := validateSource(term.URL); err != nil {
			return fmt.Errorf("%s: %w", termField(term.Name, "URL"), err)
		}
	}

	return nil
}

func validateSource(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效 URL: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if parsed.Host == "" {
			return errors.New("缺少 Host")
		}
	case "file":
		if parsed.Path == "" {
			return errors.New("缺少文件路径")
		}
	default:
		return errors.New("仅支持 http/https/file")
	}
	return nil
}
