package mailer

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer substitutes Liquid merge fields ({{ member_email }},
// {{ member_name }}, ...) into campaign subject and body text. Rendering
// is lax: a missing variable becomes an empty string, because a live send
// must not fail over an optional field. Parse errors do fail — a broken
// template can never succeed and is treated as permanent upstream.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source → *liquid.Template
}

func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// MergeVars builds the binding a campaign renders against.
func MergeVars(memberID, email, name, companyID string) map[string]interface{} {
	return map[string]interface{}{
		"member_id":    memberID,
		"member_email": email,
		"member_name":  name,
		"company_id":   companyID,
	}
}

// Render parses (with caching) and renders one template string.
func (r *Renderer) Render(source string, vars map[string]interface{}) (string, error) {
	if source == "" {
		return "", nil
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
