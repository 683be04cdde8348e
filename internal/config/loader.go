package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/termcache/termcache/internal/cache"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
// explicit 为 false 且文件不存在时直接使用默认配置，保证工具无需配置即可运行。
func Load(path string, explicit bool) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !isMissingFile(path, err) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Terminology {
		applyTerminologyDefaults(&cfg.Terminology[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDir = absCache

	return &cfg, nil
}

// Default 返回仅包含默认值的配置，等价于加载一个空文件。
func Default() *Config {
	cfg := &Config{
		Global: GlobalConfig{
			ListenPort:    5000,
			LogLevel:      "info",
			LogMaxSize:    100,
			LogMaxBackups: 10,
			LogCompress:   true,
			MaxRetries:    0,
		},
	}
	applyGlobalDefaults(&cfg.Global)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", cache.DefaultDir())
	v.SetDefault("CacheTTL", 86400)
	v.SetDefault("FetchTimeout", "30s")
	v.SetDefault("MaxRetries", 0)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("WaitTimeout", "0s")
	v.SetDefault("PreloadConcurrency", 4)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		g.CacheDir = cache.DefaultDir()
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(cache.DefaultRetention)
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(30 * time.Second)
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.PreloadConcurrency == 0 {
		g.PreloadConcurrency = 4
	}
}

func applyTerminologyDefaults(t *TerminologyConfig) {
	t.Name = strings.TrimSpace(t.Name)
	t.URL = strings.TrimSpace(t.URL)
	if t.Name == "" && t.URL != "" {
		t.Name = defaultName(t.URL)
	}
}

// defaultName 以 URL 的 basename（去掉扩展名）作为未命名术语源的名称。
func defaultName(raw string) string {
	base := raw
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isMissingFile(path string, err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	_, statErr := os.Stat(path)
	return errors.Is(statErr, fs.ErrNotExist)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
