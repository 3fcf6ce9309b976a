package richtext

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var mergeField = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Renderer turns the Markdown produced by the portal editor into safe HTML.
// Raw HTML in the source is dropped.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a renderer with GFM tables/links and hard wraps.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// HTML renders src to HTML.
func (r *Renderer) HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Personalize replaces {{field}} placeholders with values. Unknown fields are left blank.
func Personalize(src string, values map[string]string) string {
	return mergeField.ReplaceAllStringFunc(src, func(m string) string {
		name := mergeField.FindStringSubmatch(m)[1]
		return values[strings.ToLower(name)]
	})
}

// MergeFields lists the distinct placeholders used in src, in order of first use.
func MergeFields(src string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range mergeField.FindAllStringSubmatch(src, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
