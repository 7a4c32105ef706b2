package parser

import (
	"testing"

	"github.com/starford/herald/internal/models"
)

func TestParse_HeaderAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\npublish: true\n---\n# Hello\nBody text.\n")
	r := Parse(input)
	if r.Metadata == nil {
		t.Fatal("expected metadata")
	}
	if got := r.Metadata.Title(); got != "Hello" {
		t.Errorf("title = %q, want %q", got, "Hello")
	}
	if !r.Metadata.Publish() {
		t.Error("publish should be true")
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoHeader(t *testing.T) {
	r := Parse([]byte("# Just a heading\nSome text.\n"))
	if r.Metadata != nil {
		t.Errorf("expected nil metadata, got %v", r.Metadata)
	}
	if _, ok := Extract([]byte("plain")); ok {
		t.Error("Extract should report no metadata")
	}
}

func TestParse_UnclosedHeader(t *testing.T) {
	input := []byte("---\npublish: true\nno closing delimiter\n")
	if _, ok := Extract(input); ok {
		t.Error("unclosed header should not be recognised")
	}
}

func TestParse_BooleanCaseInsensitive(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "True"} {
		m, _ := Extract([]byte("---\npublish: " + v + "\n---\n"))
		if !m.Publish() {
			t.Errorf("publish: %s should be boolean true", v)
		}
	}
	m, _ := Extract([]byte("---\npublish: FALSE\n---\n"))
	if got := m["publish"]; got.Kind != models.KindBool || got.Bool {
		t.Errorf("publish = %+v, want bool false", got)
	}
	m, _ = Extract([]byte("---\npublish: yes\n---\n"))
	if m.Publish() {
		t.Error("publish: yes must stay a string")
	}
}

func TestParse_MalformedLinesSkipped(t *testing.T) {
	m, ok := Extract([]byte("---\nthis line has no colon\npublish: true\n: empty key\n---\nbody"))
	if !ok {
		t.Fatal("expected metadata")
	}
	if len(m) != 1 || !m.Publish() {
		t.Errorf("metadata = %v, want only publish", m)
	}
}

func TestParse_Sequences(t *testing.T) {
	m, _ := Extract([]byte("---\ntags: [go, \"notes\"]\naliases:\n  - one\n  - two\npublish: true\n---\n"))
	tags := m["tags"]
	if tags.Kind != models.KindList || len(tags.List) != 2 || tags.List[1] != "notes" {
		t.Errorf("tags = %+v", tags)
	}
	aliases := m["aliases"]
	if aliases.Kind != models.KindList || len(aliases.List) != 2 || aliases.List[0] != "one" {
		t.Errorf("aliases = %+v", aliases)
	}
	if !m.Publish() {
		t.Error("publish after block list should still parse")
	}
}

func TestParse_ValueWithColon(t *testing.T) {
	m, _ := Extract([]byte("---\nurl: https://example.com/a\n---\n"))
	if got := m["url"].Str; got != "https://example.com/a" {
		t.Errorf("url = %q", got)
	}
}
