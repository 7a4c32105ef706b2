package publish

import (
	"sort"
	"strings"
	"time"
)

// branchTimeLayout is ISO 8601 with millisecond precision in UTC.
const branchTimeLayout = "2006-01-02T15:04:05.000Z"

var branchTimeReplacer = strings.NewReplacer(":", "-", ".", "-")

// BranchName derives the per-attempt branch name from root and t.
func BranchName(root string, t time.Time) string {
	return root + "-" + branchTimeReplacer.Replace(t.UTC().Format(branchTimeLayout))
}

// DestinationPath joins the content root and a converted filename,
// collapsing repeated slashes and dropping the leading one.
func DestinationPath(contentRoot, filename string) string {
	joined := contentRoot + "/" + filename
	var b strings.Builder
	b.Grow(len(joined))
	prevSlash := false
	for i := 0; i < len(joined); i++ {
		c := joined[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return strings.TrimPrefix(b.String(), "/")
}

// Collision is a destination path claimed by more than one source document.
type Collision struct {
	Path    string   `json:"path"`
	Sources []string `json:"sources"`
}

// DetectCollisions returns the destination paths shared by distinct
// sources, ordered by path.
func DetectCollisions(files []File) []Collision {
	bySource := make(map[string][]string)
	for _, f := range files {
		sources := bySource[f.Path]
		if !contains(sources, f.Source) {
			bySource[f.Path] = append(sources, f.Source)
		}
	}

	var out []Collision
	for p, sources := range bySource {
		if len(sources) > 1 {
			out = append(out, Collision{Path: p, Sources: sources})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
