package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
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

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	CacheDir           string   `mapstructure:"CacheDir"`
	CacheTTL           Duration `mapstructure:"CacheTTL"`
	FetchTimeout       Duration `mapstructure:"FetchTimeout"`
	MaxRetries         int      `mapstructure:"MaxRetries"`
	InitialBackoff     Duration `mapstructure:"InitialBackoff"`
	WaitTimeout        Duration `mapstructure:"WaitTimeout"`
	PreloadConcurrency int      `mapstructure:"PreloadConcurrency"`
}

// TerminologyConfig 声明一个已知的术语源，Preload 为 true 时服务启动即后台加载。
type TerminologyConfig struct {
	Name    string `mapstructure:"Name"`
	URL     string `mapstructure:"URL"`
	Preload bool   `mapstructure:"Preload"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global      GlobalConfig        `mapstructure:",squash"`
	Terminology []TerminologyConfig `mapstructure:"Terminology"`
}

// Preloads 返回需要在启动时后台加载的术语 URL，保持声明顺序。
func (c *Config) Preloads() []string {
	if c == nil {
		return nil
	}
	var ids []string
	for _, term := range c.Terminology {
		if term.Preload {
			ids = append(ids, term.URL)
		}
	}
	return ids
}

// TerminologyNames 返回所有术语源的名称，供日志字段使用。
func TerminologyNames(terms []TerminologyConfig) []string {
	if len(terms) == 0 {
		return nil
	}
	result := make([]string, len(terms))
	for i, term := range terms {
		result[i] = term.Name
	}
	return result
}
