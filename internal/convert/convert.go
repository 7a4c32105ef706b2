// Package convert turns a tracked note into the file the static-site
// generator consumes.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/parser"
)

// ErrEmptyFilename is returned when no usable filename can be derived.
var ErrEmptyFilename = errors.New("convert: empty filename")

// Document is a converted note.
type Document struct {
	Filename string
	Content  []byte
}

// Converter converts raw note content, identified by its store path.
type Converter interface {
	Convert(content []byte, identity string) (*Document, error)
}

// Func adapts a function to the Converter interface.
type Func func(content []byte, identity string) (*Document, error)

// Convert calls f.
func (f Func) Convert(content []byte, identity string) (*Document, error) {
	return f(content, identity)
}

// Markdown is the default converter: it re-emits the header as YAML front
// matter without the publish marker and keeps the body verbatim. The
// filename is a slug of the title, falling back to the note's base name.
type Markdown struct{}

// Convert implements Converter.
func (Markdown) Convert(content []byte, identity string) (*Document, error) {
	res := parser.Parse(content)

	base := strings.TrimSuffix(path.Base(identity), path.Ext(identity))
	slug := Slug(res.Metadata.Title())
	if slug == "" {
		slug = Slug(base)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w for %s", ErrEmptyFilename, identity)
	}

	var buf bytes.Buffer
	if fm, err := frontMatter(res.Metadata); err != nil {
		return nil, fmt.Errorf("convert %s: %w", identity, err)
	} else if fm != nil {
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n")
	}
	buf.WriteString(res.Body)

	return &Document{Filename: slug + ".md", Content: buf.Bytes()}, nil
}

// frontMatter encodes metadata other than the publish marker as a YAML
// mapping with keys in sorted order. It returns nil when nothing remains.
func frontMatter(meta models.Metadata) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range meta.Keys() {
		if k == models.PublishKey {
			continue
		}
		var val yaml.Node
		if err := val.Encode(meta[k].Interface()); err != nil {
			return nil, err
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	return yaml.Marshal(root)
}

// Slug lowercases s, strips diacritics and replaces every run of
// non-alphanumeric characters with a single hyphen.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	return b.String()
}
