package terminology

import (
	"path"
	"strings"
)

// Terminology 是一份术语文档解析并 Finalize 后的结果。存入注册表后不再修改。
type Terminology struct {
	Name       string
	Source     string
	Version    string
	Author     string
	Date       string
	Repository string
	Sections   []*Section

	byType map[string][]*Section
}

// Section 是术语中的一个分节，可嵌套。
type Section struct {
	Name       string
	Type       string
	Definition string
	Properties []*Property
	Sections   []*Section
}

// Property 描述分节下的一个属性及其取值。
type Property struct {
	Name       string
	Definition string
	Values     []Value
}

// Value 是属性的单个取值，Type/Unit 可为空。
type Value struct {
	Data string
	Type string
	Unit string
}

// Summary 是用于日志与诊断输出的精简视图。
type Summary struct {
	Name       string   `json:"name"`
	Source     string   `json:"source"`
	Version    string   `json:"version,omitempty"`
	Repository string   `json:"repository,omitempty"`
	Sections   int      `json:"sections"`
	Types      []string `json:"types,omitempty"`
}

// FindByType 返回所有 type 等于 t 的分节（含嵌套），按文档顺序排列。
func (t *Terminology) FindByType(sectionType string) []*Section {
	if t == nil {
		return nil
	}
	found := t.byType[strings.ToLower(sectionType)]
	if len(found) == 0 {
		return nil
	}
	return append([]*Section(nil), found...)
}

// Section 按名称路径逐级查找分节，例如 Section("Subject", "Address")。
func (t *Terminology) Section(names ...string) *Section {
	if t == nil || len(names) == 0 {
		return nil
	}
	current := findChild(t.Sections, names[0])
	for _, name := range names[1:] {
		if current == nil {
			return nil
		}
		current = findChild(current.Sections, name)
	}
	return current
}

// Property 返回分节下指定名称的属性。
func (s *Section) Property(name string) *Property {
	if s == nil {
		return nil
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Count 返回分节总数（含嵌套）。
func (t *Terminology) Count() int {
	if t == nil {
		return 0
	}
	total := 0
	walk(t.Sections, func(*Section) { total++ })
	return total
}

// Summary 生成精简视图，类型列表按首次出现顺序去重。
func (t *Terminology) Summary() Summary {
	if t == nil {
		return Summary{}
	}
	var types []string
	seen := map[string]struct{}{}
	walk(t.Sections, func(s *Section) {
		key := strings.ToLower(s.Type)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		types = append(types, s.Type)
	})
	return Summary{
		Name:       t.Name,
		Source:     t.Source,
		Version:    t.Version,
		Repository: t.Repository,
		Sections:   t.Count(),
		Types:      types,
	}
}

func findChild(sections []*Section, name string) *Section {
	for _, s := range sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func walk(sections []*Section, fn func(*Section)) {
	for _, s := range sections {
		fn(s)
		walk(s.Sections, fn)
	}
}

// NameFromLabel 取 label 的 basename 并去掉扩展名，例如 https://example.org/terms.xml → terms。
func NameFromLabel(label string) string {
	base := label
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if q := strings.IndexAny(base, "?#"); q >= 0 {
		base = base[:q]
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
