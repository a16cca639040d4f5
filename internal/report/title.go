package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
)

// DefaultTitle is used when no sheets title template is configured.
const DefaultTitle = "Campaign Performance Report {{ date }}"

// TitleRenderer renders liquid templates for report titles and file names.
// Bindings always include date (2006-01-02), datetime (2006-01-02 15:04
// UTC) and timestamp (20060102_150405).
type TitleRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTitleRenderer creates a renderer with the slug filter registered.
func NewTitleRenderer() *TitleRenderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("slug", slugify)
	return &TitleRenderer{engine: engine}
}

// Render renders tpl at time at with the extra bindings.
func (r *TitleRenderer) Render(tpl string, at time.Time, extra map[string]interface{}) (string, error) {
	at = at.UTC()
	bindings := map[string]interface{}{
		"date":      at.Format("2006-01-02"),
		"datetime":  at.Format("2006-01-02 15:04") + " UTC",
		"timestamp": at.Format("20060102_150405"),
	}
	for k, v := range extra {
		bindings[k] = v
	}

	var t *liquid.Template
	if cached, ok := r.cache.Load(tpl); ok {
		t = cached.(*liquid.Template)
	} else {
		if err := checkDelimiters(tpl); err != nil {
			return "", fmt.Errorf("parse template %q: %w", tpl, err)
		}
		parsed, err := r.engine.ParseString(tpl)
		if err != nil {
			return "", fmt.Errorf("parse template %q: %w", tpl, err)
		}
		r.cache.Store(tpl, parsed)
		t = parsed
	}

	out, err := t.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", tpl, err)
	}
	return out, nil
}

// checkDelimiters rejects an output or tag opener with no closer. The
// liquid parser passes those through as literal text.
func checkDelimiters(tpl string) error {
	for rest := tpl; ; {
		i := strings.IndexByte(rest, '{')
		if i < 0 || i+1 >= len(rest) {
			return nil
		}
		var closer string
		switch rest[i+1] {
		case '{':
			closer = "}}"
		case '%':
			closer = "%}"
		default:
			rest = rest[i+1:]
			continue
		}
		end := strings.Index(rest[i+2:], closer)
		if end < 0 {
			return fmt.Errorf("unterminated %q at offset %d", rest[i:i+2], len(tpl)-len(rest)+i)
		}
		rest = rest[i+2+end+len(closer):]
	}
}

func slugify(s string) string {
	out := make([]rune, 0, len(s))
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			dash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			dash = false
		default:
			if !dash && len(out) > 0 {
				out = append(out, '-')
				dash = true
			}
		}
	}
	if dash {
		out = out[:len(out)-1]
	}
	return string(out)
}
