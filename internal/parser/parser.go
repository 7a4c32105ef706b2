// Package parser extracts the leading key-value header block from Markdown documents.
//
// The header is user-authored free text, so parsing is forgiving: lines
// without a colon are skipped, "true"/"false" (any case) become booleans,
// "[a, b]" and indented "- item" lines become sequences, and everything else
// is kept as a string.
package parser

import (
	"bytes"
	"strings"

	"github.com/starford/herald/internal/models"
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	// Metadata is nil when the document has no header block.
	Metadata models.Metadata
	Body     string
}

// Parse splits data into its header mapping and body.
func Parse(data []byte) *Result {
	block, body, ok := splitHeader(data)
	if !ok {
		return &Result{Body: string(data)}
	}
	return &Result{Metadata: parseBlock(block), Body: body}
}

// Extract returns the parsed header, or false when the document has none.
func Extract(data []byte) (models.Metadata, bool) {
	res := Parse(data)
	return res.Metadata, res.Metadata != nil
}

// splitHeader separates the header (between leading --- delimiters) from the
// body. A missing closing delimiter means there is no header.
func splitHeader(data []byte) (string, string, bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return "", "", false
	}

	rest := trimmed[len(delim):]
	// The opening delimiter must be alone on its line.
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return "", "", false
	}
	rest = rest[nl:]

	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return "", "", false
	}

	block := string(rest[:idx])
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")
	return block, body, true
}

func parseBlock(block string) models.Metadata {
	out := models.Metadata{}
	var listKey string

	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Block sequence item belonging to the previous empty-valued key.
		if listKey != "" && strings.HasPrefix(trimmed, "- ") {
			v := out[listKey]
			v.Kind = models.KindList
			v.Str = ""
			v.List = append(v.List, unquote(strings.TrimSpace(trimmed[2:])))
			out[listKey] = v
			continue
		}
		listKey = ""

		i := strings.Index(trimmed, ":")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:i])
		val := strings.TrimSpace(trimmed[i+1:])
		if val == "" {
			listKey = key
		}
		out[key] = parseValue(val)
	}
	return out
}

func parseValue(val string) models.Value {
	switch {
	case strings.EqualFold(val, "true"):
		return models.Bool(true)
	case strings.EqualFold(val, "false"):
		return models.Bool(false)
	case strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]"):
		inner := strings.TrimSpace(val[1 : len(val)-1])
		items := []string{}
		if inner != "" {
			for _, item := range strings.Split(inner, ",") {
				if item = unquote(strings.TrimSpace(item)); item != "" {
					items = append(items, item)
				}
			}
		}
		return models.List(items...)
	default:
		return models.String(unquote(val))
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
