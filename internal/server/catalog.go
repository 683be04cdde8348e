package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/termcache/termcache/internal/config"
)

// CatalogEntry 将配置中的术语源与解析后的 URL 聚合在一起，避免重复解析配置。
type CatalogEntry struct {
	// Config 是用户在 config.toml 中声明的字段副本，避免外部修改。
	Config config.TerminologyConfig
	// URL 在构造 Catalog 时提前解析完成。
	URL *url.URL
}

// ID 返回注册表使用的资源 id（即配置中的原始 URL 字符串，不做规范化）。
func (e CatalogEntry) ID() string {
	return e.Config.URL
}

// Catalog 提供名称到术语源的查询能力，名称大小写不敏感。
type Catalog struct {
	entries map[string]*CatalogEntry
	ordered []*CatalogEntry
}

// NewCatalog 根据配置构建名称映射。调用方应在启动阶段创建一次并复用。
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	catalog := &Catalog{
		entries: make(map[string]*CatalogEntry, len(cfg.Terminology)),
	}

	for _, term := range cfg.Terminology {
		key := normalizeName(term.Name)
		if key == "" {
			return nil, fmt.Errorf("terminology %s has no name", term.URL)
		}
		if _, exists := catalog.entries[key]; exists {
			return nil, fmt.Errorf("duplicate terminology name %s", term.Name)
		}

		parsed, err := url.Parse(term.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url for terminology %s: %w", term.Name, err)
		}

		entry := &CatalogEntry{Config: term, URL: parsed}
		catalog.entries[key] = entry
		catalog.ordered = append(catalog.ordered, entry)
	}

	return catalog, nil
}

// Lookup 根据名称查找术语源。
func (c *Catalog) Lookup(name string) (*CatalogEntry, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entries[normalizeName(name)]
	return entry, ok
}

// List 返回按配置顺序排列的术语源，用于诊断输出。
func (c *Catalog) List() []CatalogEntry {
	if c == nil || len(c.ordered) == 0 {
		return nil
	}

	result := make([]CatalogEntry, len(c.ordered))
	for i, entry := range c.ordered {
		result[i] = *entry
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
