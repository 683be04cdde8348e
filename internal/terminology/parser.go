package terminology

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parser 把字节流转换为 Terminology。label 通常是资源 id，仅用于诊断信息。
type Parser interface {
	Parse(r io.Reader, label string) (*Terminology, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(r io.Reader, label string) (*Terminology, error)

// Parse makes ParserFunc satisfy Parser.
func (f ParserFunc) Parse(r io.Reader, label string) (*Terminology, error) {
	return f(r, label)
}

// XMLParser 解析 odML XML 术语文档，并在返回前执行 Finalize。
type XMLParser struct{}

type xmlDocument struct {
	XMLName    xml.Name     `xml:"odML"`
	Version    string       `xml:"version,attr"`
	Author     string       `xml:"author"`
	Date       string       `xml:"date"`
	Repository string       `xml:"repository"`
	Sections   []xmlSection `xml:"section"`
}

type xmlSection struct {
	Name       string        `xml:"name"`
	Type       string        `xml:"type"`
	Definition string        `xml:"definition"`
	Properties []xmlProperty `xml:"property"`
	Sections   []xmlSection  `xml:"section"`
}

type xmlProperty struct {
	Name       string     `xml:"name"`
	Definition string     `xml:"definition"`
	Values     []xmlValue `xml:"value"`
}

type xmlValue struct {
	Data string `xml:",chardata"`
	Type string `xml:"type"`
	Unit string `xml:"unit"`
}

// Parse 解码 odML 文档并调用 Finalize；任何失败都返回 *ParseError。
func (XMLParser) Parse(r io.Reader, label string) (*Terminology, error) {
	var doc xmlDocument
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Label: label, Message: "empty document"}
		}
		return nil, &ParseError{Label: label, Message: "malformed odML document", Err: err}
	}

	term := &Terminology{
		Name:       NameFromLabel(label),
		Source:     label,
		Version:    strings.TrimSpace(doc.Version),
		Author:     strings.TrimSpace(doc.Author),
		Date:       strings.TrimSpace(doc.Date),
		Repository: strings.TrimSpace(doc.Repository),
		Sections:   convertSections(doc.Sections),
	}
	if err := term.Finalize(); err != nil {
		return nil, err
	}
	return term, nil
}

func convertSections(raw []xmlSection) []*Section {
	if len(raw) == 0 {
		return nil
	}
	result := make([]*Section, 0, len(raw))
	for _, s := range raw {
		section := &Section{
			Name:       strings.TrimSpace(s.Name),
			Type:       strings.TrimSpace(s.Type),
			Definition: strings.TrimSpace(s.Definition),
			Sections:   convertSections(s.Sections),
		}
		for _, p := range s.Properties {
			prop := &Property{
				Name:       strings.TrimSpace(p.Name),
				Definition: strings.TrimSpace(p.Definition),
			}
			for _, v := range p.Values {
				prop.Values = append(prop.Values, Value{
					Data: strings.TrimSpace(v.Data),
					Type: strings.TrimSpace(v.Type),
					Unit: strings.TrimSpace(v.Unit),
				})
			}
			section.Properties = append(section.Properties, prop)
		}
		result = append(result, section)
	}
	return result
}

// Finalize 做解析后的一致性校验并建立类型索引：
// 每个分节必须有 name 与 type，同级分节不可重名，同一分节下属性不可重名。
func (t *Terminology) Finalize() error {
	index := make(map[string][]*Section)
	if err := finalizeSections(t.Sections, t.Source, "", index); err != nil {
		return err
	}
	t.byType = index
	return nil
}

func finalizeSections(sections []*Section, label, parent string, index map[string][]*Section) error {
	seen := make(map[string]struct{}, len(sections))
	for i, s := range sections {
		where := fmt.Sprintf("%s/section[%d]", parent, i)
		if s.Name == "" {
			return &ParseError{Label: label, Message: where + ": section name required"}
		}
		where = parent + "/" + s.Name
		if s.Type == "" {
			return &ParseError{Label: label, Message: where + ": section type required"}
		}
		if _, dup := seen[s.Name]; dup {
			return &ParseError{Label: label, Message: where + ": duplicate section name"}
		}
		seen[s.Name] = struct{}{}

		props := make(map[string]struct{}, len(s.Properties))
		for _, p := range s.Properties {
			if p.Name == "" {
				return &ParseError{Label: label, Message: where + ": property name required"}
			}
			if _, dup := props[p.Name]; dup {
				return &ParseError{Label: label, Message: where + ": duplicate property " + p.Name}
			}
			props[p.Name] = struct{}{}
		}

		key := strings.ToLower(s.Type)
		index[key] = append(index[key], s)
		if err := finalizeSections(s.Sections, label, where, index); err != nil {
			return err
		}
	}
	return nil
}
