// Package prompt renders prompt templates from a base directory.
package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Loader parses templates on demand and keeps the parsed forms in an LRU so
// repeated runs do not re-read prompt files. Rendering fails on any variable
// the template names but the context does not provide.
type Loader struct {
	baseDir string
	cache   *lru.Cache[string, *template.Template]
}

func NewLoader(baseDir string) *Loader {
	cache, _ := lru.New[string, *template.Template](64)
	return &Loader{baseDir: baseDir, cache: cache}
}

// Render loads the template at rel (relative to the base dir) and executes it
// with ctx.
func (l *Loader) Render(rel string, ctx map[string]any) (string, error) {
	tmpl, err := l.load(rel)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", errors.Wrapf(err, "render prompt %s", rel)
	}
	return sb.String(), nil
}

func (l *Loader) load(rel string) (*template.Template, error) {
	if tmpl, ok := l.cache.Get(rel); ok {
		return tmpl, nil
	}
	path := filepath.Join(l.baseDir, filepath.FromSlash(rel))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "prompt file not found: %s", rel)
	}
	tmpl, err := template.New(rel).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, errors.Wrapf(err, "parse prompt %s", rel)
	}
	l.cache.Add(rel, tmpl)
	return tmpl, nil
}
