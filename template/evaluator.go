// Package template implements the Template Evaluator described in the
// engine's design: a small, closed expression language over
// "{{ path | filter(args) | ... }}" syntax, rendered against an execution
// context snapshot. Path access and literal text are handled directly;
// anything involving operators (arithmetic, comparisons, boolean
// conjunctions) is handed to github.com/expr-lang/expr, which the teacher
// pack's own scriptengines/expr module pairs with the risor-backed Sandbox
// engine for exactly this "small expression, not a full scripting
// language" role.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var exprTag = regexp.MustCompile(`\{\{(.*?)\}\}`)

// pathGrammar matches a bare path expression: an identifier followed by any
// number of ".identifier" or "[literal]" segments, with no operators. Such
// expressions are resolved by direct map/slice walking so that "unknown
// path" can be distinguished from "value is legitimately nil".
var pathGrammar = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*((\.[A-Za-z_][A-Za-z0-9_]*)|(\[-?\d+\])|(\["[^"]*"\]))*$`)

// Error is returned for TEMPLATE_ERROR conditions: unknown path with no
// default, syntax error, or a filter receiving a wrong-typed argument.
type Error struct {
	Expr string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("template error in %q: %s", e.Expr, e.Msg)
}

func tmplErr(expr, msg string, args ...any) error {
	return &Error{Expr: expr, Msg: fmt.Sprintf(msg, args...)}
}

// Render evaluates a string that may contain zero or more "{{ ... }}"
// expressions plus literal text. If the rendered string IS the entire
// expression, the non-string value is returned as-is; otherwise results
// are stringified and concatenated with the surrounding literal text.
func Render(raw string, ctx map[string]any) (any, error) {
	matches := exprTag.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(raw) {
		inner := raw[matches[0][2]:matches[0][3]]
		return evaluate(strings.TrimSpace(inner), ctx)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(raw[last:m[0]])
		inner := raw[m[2]:m[3]]
		value, err := evaluate(strings.TrimSpace(inner), ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(value))
		last = m[1]
	}
	b.WriteString(raw[last:])
	return b.String(), nil
}

// RenderDocument recursively renders every string leaf of a structural
// document (maps, slices), leaving other value kinds untouched.
func RenderDocument(doc any, ctx map[string]any) (any, error) {
	switch v := doc.(type) {
	case string:
		return Render(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			rendered, err := RenderDocument(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := RenderDocument(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return doc, nil
	}
}

// evaluate runs the pipeline "base | filter(args) | filter(args) ..." found
// inside one "{{ }}" tag.
func evaluate(pipeline string, ctx map[string]any) (any, error) {
	segments, err := splitPipeline(pipeline)
	if err != nil {
		return nil, tmplErr(pipeline, "%v", err)
	}
	if len(segments) == 0 {
		return nil, tmplErr(pipeline, "empty expression")
	}

	base := strings.TrimSpace(segments[0])
	value, found, evalErr := evaluateBase(base, ctx)

	filters := segments[1:]
	for i, rawFilter := range filters {
		name, args := parseFilterCall(rawFilter)
		if name == "default" {
			if !found || evalErr != nil {
				if len(args) != 1 {
					return nil, tmplErr(pipeline, "default() requires exactly one argument")
				}
				value = resolveFilterArg(args[0], ctx)
				found = true
				evalErr = nil
			}
			continue
		}
		if evalErr != nil || !found {
			return nil, tmplErr(pipeline, "unknown path %q with no default", base)
		}
		value, evalErr = applyFilter(name, args, value, ctx)
		if evalErr != nil {
			return nil, tmplErr(pipeline, "filter %q (position %d): %v", name, i, evalErr)
		}
	}

	if evalErr != nil {
		return nil, tmplErr(pipeline, "%v", evalErr)
	}
	if !found {
		return nil, tmplErr(pipeline, "unknown path %q with no default", base)
	}
	return value, nil
}

// evaluateBase resolves the expression left of the first "|". Pure path
// expressions are walked directly against ctx so that an absent key can be
// reported distinctly from a present key whose value is nil. Anything else
// (arithmetic, comparisons, "and"/"or", string concatenation, etc.) is
// compiled and run by expr-lang/expr.
func evaluateBase(base string, ctx map[string]any) (value any, found bool, err error) {
	if base == "" {
		return nil, false, fmt.Errorf("empty path")
	}
	if pathGrammar.MatchString(base) {
		return resolvePath(base, ctx)
	}
	program, cerr := expr.Compile(base, expr.Env(ctx), expr.AllowUndefinedVariables())
	if cerr != nil {
		return nil, false, fmt.Errorf("syntax error: %w", cerr)
	}
	out, rerr := expr.Run(program, ctx)
	if rerr != nil {
		return nil, false, fmt.Errorf("evaluation error: %w", rerr)
	}
	return out, true, nil
}

// resolvePath walks a dotted/bracketed path (e.g. "steps.a.output.field",
// "inputs.list[0]") against ctx.
func resolvePath(path string, ctx map[string]any) (any, bool, error) {
	tokens := tokenizePath(path)
	if len(tokens) == 0 {
		return nil, false, fmt.Errorf("empty path")
	}
	var current any = ctx
	for i, tok := range tokens {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[tok.key]
			if !ok {
				return nil, false, nil
			}
			current = next
		case []any:
			idx, convErr := strconv.Atoi(tok.key)
			if convErr != nil {
				return nil, false, nil
			}
			if idx < 0 {
				idx += len(v)
			}
			if idx < 0 || idx >= len(v) {
				return nil, false, nil
			}
			current = v[idx]
		default:
			if i == 0 {
				return nil, false, nil
			}
			return nil, false, nil
		}
	}
	return current, true, nil
}

type pathToken struct{ key string }

func tokenizePath(path string) []pathToken {
	var tokens []pathToken
	var cur strings.Builder
	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '.':
			if cur.Len() > 0 {
				tokens = append(tokens, pathToken{cur.String()})
				cur.Reset()
			}
			i++
		case '[':
			if cur.Len() > 0 {
				tokens = append(tokens, pathToken{cur.String()})
				cur.Reset()
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				i = len(path)
				break
			}
			inner := path[i+1 : i+end]
			inner = strings.Trim(inner, `"`)
			tokens = append(tokens, pathToken{inner})
			i += end + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, pathToken{cur.String()})
	}
	return tokens
}

// splitPipeline splits on top-level "|" characters, ignoring those nested
// inside parentheses or quoted strings.
func splitPipeline(s string) ([]string, error) {
	var segments []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
			cur.WriteByte(c)
		case inQuote:
			cur.WriteByte(c)
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
			cur.WriteByte(c)
		case c == '|' && depth == 0:
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	segments = append(segments, cur.String())
	return segments, nil
}

// parseFilterCall parses "name(arg1, arg2)" or a bare "name" into its parts.
func parseFilterCall(s string) (name string, args []string) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s, nil
	}
	name = strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil
	}
	for _, part := range splitArgs(inner) {
		args = append(args, strings.TrimSpace(part))
	}
	return name, args
}

func splitArgs(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

// resolveFilterArg resolves a filter argument literal: a quoted string, a
// number, a boolean, or a bare path looked up against ctx.
func resolveFilterArg(arg string, ctx map[string]any) any {
	arg = strings.TrimSpace(arg)
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg[1 : len(arg)-1]
	}
	if arg == "true" {
		return true
	}
	if arg == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(arg, 64); err == nil {
		return n
	}
	if pathGrammar.MatchString(arg) {
		if v, found, _ := resolvePath(arg, ctx); found {
			return v
		}
	}
	return arg
}

// applyFilter implements the closed filter set named in the design:
// tojson, length, join(sep). default() is handled in evaluate() because it
// needs to see whether the base resolution failed.
func applyFilter(name string, args []string, value any, ctx map[string]any) (any, error) {
	switch name {
	case "tojson":
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
		}
		return string(b), nil
	case "length":
		switch v := value.(type) {
		case string:
			return len(v), nil
		case []any:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		default:
			return nil, fmt.Errorf("length requires a string, array, or object, got %T", value)
		}
	case "join":
		if len(args) != 1 {
			return nil, fmt.Errorf("join() requires exactly one argument")
		}
		sep := resolveFilterArg(args[0], ctx)
		sepStr, ok := sep.(string)
		if !ok {
			return nil, fmt.Errorf("join() separator must be a string")
		}
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("join() requires an array, got %T", value)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, sepStr), nil
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
