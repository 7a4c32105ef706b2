package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Kind enumerates the variants a header value can take.
type Kind int

// Value kinds.
const (
	KindString Kind = iota
	KindBool
	KindList
)

// Value is one header value: a string, a boolean, or a sequence of strings.
type Value struct {
	Kind Kind
	Str  string
	Bool bool
	List []string
}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List builds a sequence value.
func List(items ...string) Value { return Value{Kind: KindList, List: items} }

// Interface returns the value as a plain Go value (string, bool or []string).
func (v Value) Interface() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindList:
		return append([]string(nil), v.List...)
	default:
		return v.Str
	}
}

// Canonical renders the value in a stable textual form.
func (v Value) Canonical() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindList:
		return "[" + strings.Join(v.List, ", ") + "]"
	default:
		return v.Str
	}
}

// MarshalJSON encodes the value as its plain JSON counterpart.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Metadata is the parsed header of a document.
type Metadata map[string]Value

// Publish reports whether the header carries publish: true.
func (m Metadata) Publish() bool {
	v, ok := m[PublishKey]
	return ok && v.Kind == KindBool && v.Bool
}

// Title returns the title key if it is a non-empty string.
func (m Metadata) Title() string {
	if v, ok := m["title"]; ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// Keys returns the header keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.Kind == KindList {
			v.List = append([]string(nil), v.List...)
		}
		out[k] = v
	}
	return out
}
