package narrative

import "strings"

// ResolvePath walks a dotted path ("a.b.c") through the context. The second
// return is false when any step is missing or the current value is not a
// nested map. Never panics, never mutates the context.
func ResolvePath(path string, ctx TemplateContext) (any, bool) {
	if path == "" || ctx == nil {
		return nil, false
	}

	var current any = map[string]any(ctx)
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
