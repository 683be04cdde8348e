package terminology

import (
	"errors"
	"strings"
	"testing"
)

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<odML version="1">
  <author>odML team</author>
  <date>2011-01-05</date>
  <repository>https://example.org/terms.xml</repository>
  <section>
    <name>Subject</name>
    <type>subject</type>
    <definition>The investigated experimental subject.</definition>
    <property>
      <name>Species</name>
      <definition>Binomial species name.</definition>
      <value>Mus musculus<type>string</type></value>
    </property>
    <property>
      <name>Age</name>
      <value>12<type>int</type><unit>d</unit></value>
    </property>
    <section>
      <name>Housing</name>
      <type>subject/housing</type>
    </section>
  </section>
  <section>
    <name>Cell</name>
    <type>cell</type>
  </section>
</odML>`

func TestXMLParserParsesDocument(t *testing.T) {
	term, err := XMLParser{}.Parse(strings.NewReader(sampleDocument), "https://example.org/terms.xml")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if term.Name != "terms" {
		t.Fatalf("expected name terms, got %q", term.Name)
	}
	if term.Version != "1" || term.Author != "odML team" {
		t.Fatalf("unexpected header fields: %+v", term)
	}
	if term.Count() != 3 {
		t.Fatalf("expected 3 sections, got %d", term.Count())
	}

	age := term.Section("Subject").Property("Age")
	if age == nil || len(age.Values) != 1 {
		t.Fatalf("expected Age property with one value, got %+v", age)
	}
	if v := age.Values[0]; v.Data != "12" || v.Type != "int" || v.Unit != "d" {
		t.Fatalf("unexpected value %+v", v)
	}

	if housing := term.Section("Subject", "Housing"); housing == nil || housing.Type != "subject/housing" {
		t.Fatalf("nested lookup failed: %+v", housing)
	}
	if got := term.FindByType("CELL"); len(got) != 1 || got[0].Name != "Cell" {
		t.Fatalf("type index lookup failed: %+v", got)
	}
}

func TestXMLParserErrors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not xml", "this is not xml"},
		{"wrong root", "<html><body/></html>"},
		{"truncated", "<odML><section><name>A</name>"},
		{"missing type", "<odML><section><name>A</name></section></odML>"},
		{"missing name", "<odML><section><type>a</type></section></odML>"},
		{"duplicate sibling", "<odML><section><name>A</name><type>a</type></section><section><name>A</name><type>b</type></section></odML>"},
		{"duplicate property", "<odML><section><name>A</name><type>a</type><property><name>P</name></property><property><name>P</name></property></section></odML>"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := XMLParser{}.Parse(strings.NewReader(tc.doc), "bad")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if parseErr.Label != "bad" {
				t.Fatalf("expected label to be carried, got %q", parseErr.Label)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	term, err := XMLParser{}.Parse(strings.NewReader(sampleDocument), "https://example.org/terms.xml")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	summary := term.Summary()
	if summary.Sections != 3 || len(summary.Types) != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Types[0] != "subject" {
		t.Fatalf("types should keep document order, got %v", summary.Types)
	}
}

func TestNameFromLabel(t *testing.T) {
	testCases := map[string]string{
		"https://example.org/terms.xml":      "terms",
		"https://example.org/v1/blank.xml?x": "blank",
		"/tmp/local":                         "local",
		"bad":                                "bad",
	}
	for label, want := range testCases {
		if got := NameFromLabel(label); got != want {
			t.Fatalf("NameFromLabel(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestNilTerminologyHelpers(t *testing.T) {
	var term *Terminology
	if term.Count() != 0 || term.FindByType("x") != nil || term.Section("x") != nil {
		t.Fatalf("nil terminology helpers should be safe")
	}
}
