package narrative

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datapulse/narrative/internal/logger"
)

// maxConditionalDepth bounds elseValue chains. Resolution past the cap
// fails closed to an empty string.
const maxConditionalDepth = 20

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)(?:\|(plain|percent|currency|compact))?\s*\}\}`)

// ProcessTemplate substitutes {{path}} placeholders in the headline and
// body against the context. Resolved conditional variables are merged into
// the context under their own names before substitution, so templates can
// reference them like any other variable. Unresolved placeholders are left
// verbatim in the output so gaps stay visible in review.
func ProcessTemplate(tpl Template, ctx TemplateContext) ResolvedNarrative {
	if len(tpl.Variables) > 0 {
		merged := make(TemplateContext, len(ctx)+len(tpl.Variables))
		for k, v := range ctx {
			merged[k] = v
		}
		for name, def := range tpl.Variables {
			merged[name] = ResolveConditional(def, ctx)
		}
		ctx = merged
	}

	return ResolvedNarrative{
		Headline:  substitute(tpl.Headline, ctx),
		Narrative: substitute(tpl.Body, ctx),
	}
}

// substitute replaces each placeholder whose path resolves; misses keep the
// original token.
func substitute(template string, ctx TemplateContext) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		m := placeholderPattern.FindStringSubmatch(tok)
		path, tag := m[1], m[2]

		v, ok := ResolvePath(path, ctx)
		if !ok {
			return tok
		}

		if tag != "" {
			if n, ok := asNumber(v); ok {
				return FormatValue(n, FormatTag(tag))
			}
		}
		return coerceString(v)
	})
}

// ResolveConditional resolves a conditional-variable definition to a string.
// A literal returns as-is. Otherwise the condition has its placeholders
// substituted with literal values and is evaluated by the safe evaluator;
// true selects thenValue, false falls through to elseValue, which may chain
// into another conditional. Both whitelist rejections and evaluation faults
// count as false. Chains deeper than maxConditionalDepth resolve to "".
func ResolveConditional(def ConditionalValue, ctx TemplateContext) string {
	return resolveConditional(def, ctx, 0)
}

func resolveConditional(def ConditionalValue, ctx TemplateContext, depth int) string {
	if depth > maxConditionalDepth {
		logger.Warn("conditional chain exceeded depth cap, failing closed", "depth", depth)
		return ""
	}

	if def.Condition == "" {
		return def.Literal
	}

	cond := substituteLiterals(def.Condition, ctx)
	ok, err := EvaluateCondition(cond)
	if err != nil {
		logger.RejectedCondition(err)
		ok = false
	}

	if ok {
		return def.ThenValue
	}
	if def.ElseValue != nil {
		return resolveConditional(*def.ElseValue, ctx, depth+1)
	}
	return ""
}

// ValidateConditional checks a definition at construction time: the chain
// must terminate within the depth cap. Malformed definitions are cheaper to
// reject when stored than to fail closed on every render.
func ValidateConditional(def ConditionalValue) error {
	depth := 0
	for cur := &def; cur != nil; cur = cur.ElseValue {
		if depth > maxConditionalDepth {
			return fmt.Errorf("conditional chain exceeds maximum depth of %d", maxConditionalDepth)
		}
		depth++
	}
	return nil
}

// substituteLiterals rewrites {{path}} tokens inside a condition string as
// literal values: numbers and booleans bare, strings quoted. Unresolved
// paths are left in place and will fail the whitelist, which is the
// intended failure mode for a condition over missing data.
func substituteLiterals(condition string, ctx TemplateContext) string {
	return placeholderPattern.ReplaceAllStringFunc(condition, func(tok string) string {
		m := placeholderPattern.FindStringSubmatch(tok)

		v, ok := ResolvePath(m[1], ctx)
		if !ok {
			return tok
		}

		switch val := v.(type) {
		case bool:
			return strconv.FormatBool(val)
		case string:
			return `"` + strings.ReplaceAll(val, `"`, `'`) + `"`
		default:
			if n, ok := asNumber(v); ok {
				return strconv.FormatFloat(n, 'f', -1, 64)
			}
			return tok
		}
	})
}

// asNumber widens the numeric types a JSON-decoded or hand-built context
// can hold.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// coerceString is the default formatting for a substituted value.
func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		if n, ok := asNumber(v); ok {
			return formatPlain(n)
		}
		return fmt.Sprintf("%v", v)
	}
}
