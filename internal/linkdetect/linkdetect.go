// Package linkdetect implements the Link Detection component (spec §4.9):
// a recursive walk over arbitrary decoded JSON that classifies every
// string (and, for Strategy 3's key-pattern mode, every number) against
// four priority-ordered strategies and renders the whole structure back
// out as syntax-highlighted HTML with matched values wrapped in anchors.
//
// The four strategies mirror the teacher's tiered IntentParser dispatch
// (internal/parser/intent_parser.go in the reference pack): try the
// highest-priority classifier first, fall through on a miss, first match
// wins — no second pass once a value is classified.
package linkdetect

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// KeyPattern is a Strategy 3 key-pattern entry: Path is a dotted nested
// object path (e.g. "owner.login" only matches the nested structure
// {"owner":{"login":...}}, never the flattened key "owner.login"), and
// Template is filled with the current value via {value} or any other
// {name} token.
type KeyPattern struct {
	Path     string
	Template string
}

// ValuePattern is a Strategy 3 value-pattern entry: Regex is tested
// against the string value; Template may reference {value} and
// {inferred_table} (resolved via Config.CrossTableMappings).
type ValuePattern struct {
	Regex    *regexp.Regexp
	Template string
}

// CompositePattern is a Strategy 4 entry for one JSON key: ContextRegex is
// matched against the current request path, ContextVars names its
// capture groups, and URLTemplate is filled with those captures plus
// {value}.
type CompositePattern struct {
	ContextRegex *regexp.Regexp
	ContextVars  []string
	URLTemplate  string
}

// Config is the link_detection sub-config of a GatewayConfig (spec §3/§4.9).
type Config struct {
	// Strategy 1.
	BaseURLStrip      string
	BaseURLStripRegex *regexp.Regexp // set instead of BaseURLStrip when the config entry is a regex
	GatewayPrefix     string

	// Strategy 2.
	KeyPatterns []string // globs matched against the immediate JSON key

	// Strategy 3.
	IDKeyPatterns      []KeyPattern
	ValuePatterns      []ValuePattern
	CrossTableMappings map[string]string // field name -> referenced entity kind/table

	// Strategy 4.
	CompositePatterns map[string][]CompositePattern // keyed by JSON key
}

var fullURLPattern = regexp.MustCompile(`^https?://`)

// Context carries the per-request state classification needs beyond the
// static Config: the request path, for Strategy 4's context captures.
type Context struct {
	Cfg         Config
	RequestPath string
}

// Render walks data (a JSON document) and returns an HTML fragment
// mirroring its structure, with syntax classes json-key, json-string,
// json-number, json-boolean, json-null, json-link. The transformation is
// total: every input position produces output (spec §4.9 invariants).
func Render(ctx *Context, data []byte) (string, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return "", fmt.Errorf("linkdetect: decode json: %w", err)
	}

	var b strings.Builder
	renderValue(ctx, &b, nil, "", parsed)
	return b.String(), nil
}

// renderValue dispatches by JSON type. keyPath is the sequence of raw
// object keys nested above this value (e.g. []string{"owner","login"});
// a literal key containing a dot, such as "owner.login" used as a single
// flat key, is one segment, not two, so it can never be confused with
// genuine nesting. key is the immediate enclosing key (e.g. "login"),
// used by Strategy 2's glob match. Both are nil/"" at the document root;
// array elements inherit the keyPath and key of the array that holds them.
func renderValue(ctx *Context, b *strings.Builder, keyPath []string, key string, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString(`<span class="json-null">null</span>`)

	case bool:
		b.WriteString(fmt.Sprintf(`<span class="json-boolean">%t</span>`, val))

	case json.Number:
		renderNumber(ctx, b, keyPath, key, val)

	case string:
		renderString(ctx, b, keyPath, key, val)

	case []interface{}:
		b.WriteString("[")
		for i, elem := range val {
			if i > 0 {
				b.WriteString(",")
			}
			renderValue(ctx, b, keyPath, key, elem)
		}
		b.WriteString("]")

	case map[string]interface{}:
		renderObject(ctx, b, keyPath, val)

	default:
		// Should not occur with json.Decoder+UseNumber, but never drop a
		// position: render its fmt representation as a plain string.
		renderString(ctx, b, keyPath, key, fmt.Sprint(val))
	}
}

func renderObject(ctx *Context, b *strings.Builder, keyPath []string, obj map[string]interface{}) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf(`<span class="json-key">%s</span>:`, html.EscapeString(strconv.Quote(k))))
		childPath := append(append([]string{}, keyPath...), k)
		renderValue(ctx, b, childPath, k, obj[k])
	}
	b.WriteString("}")
}

func renderString(ctx *Context, b *strings.Builder, keyPath []string, key, s string) {
	if s == "" {
		b.WriteString(`<span class="json-string">""</span>`)
		return
	}
	if href, ok := classifyString(ctx, keyPath, key, s); ok {
		fmt.Fprintf(b, `<a href="%s" class="json-link">%s</a>`, html.EscapeString(href), html.EscapeString(s))
		return
	}
	fmt.Fprintf(b, `<span class="json-string">%s</span>`, html.EscapeString(strconv.Quote(s)))
}

func renderNumber(ctx *Context, b *strings.Builder, keyPath []string, key string, n json.Number) {
	if href, ok := classifyKeyPattern(ctx, keyPath, n.String()); ok {
		fmt.Fprintf(b, `<a href="%s" class="json-link">%s</a>`, html.EscapeString(href), html.EscapeString(n.String()))
		return
	}
	fmt.Fprintf(b, `<span class="json-number">%s</span>`, n.String())
}

// classifyString applies the four strategies in priority order; the first
// match wins (spec §8 property 7).
func classifyString(ctx *Context, keyPath []string, key, s string) (href string, ok bool) {
	if href, ok := classifyFullURL(ctx, s); ok {
		return href, true
	}
	if href, ok := classifyPartialURL(ctx, key, s); ok {
		return href, true
	}
	if href, ok := classifyKeyPattern(ctx, keyPath, s); ok {
		return href, true
	}
	if href, ok := classifyValuePattern(ctx, key, s); ok {
		return href, true
	}
	if href, ok := classifyComposite(ctx, key, s); ok {
		return href, true
	}
	return "", false
}

// classifyFullURL implements Strategy 1.
func classifyFullURL(ctx *Context, s string) (string, bool) {
	if !fullURLPattern.MatchString(s) {
		return "", false
	}
	cfg := ctx.Cfg

	if cfg.BaseURLStripRegex != nil {
		if loc := cfg.BaseURLStripRegex.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return cfg.GatewayPrefix + s[loc[1]:], true
		}
	} else if cfg.BaseURLStrip != "" && strings.HasPrefix(s, cfg.BaseURLStrip) {
		return cfg.GatewayPrefix + strings.TrimPrefix(s, cfg.BaseURLStrip), true
	}

	return cfg.GatewayPrefix + "?target=" + url.QueryEscape(s), true
}

// classifyPartialURL implements Strategy 2: value starts with "/" and the
// enclosing key matches a configured glob (url, *_url, *_path, href, ...).
func classifyPartialURL(ctx *Context, key, s string) (string, bool) {
	if !strings.HasPrefix(s, "/") {
		return "", false
	}
	for _, pattern := range ctx.Cfg.KeyPatterns {
		if globMatch(pattern, key) {
			return ctx.Cfg.GatewayPrefix + s, true
		}
	}
	return "", false
}

// classifyKeyPattern implements Strategy 3's key-pattern sub-mode, shared
// between string and number values. keyPath must match a configured
// nested-object path segment-for-segment: a KeyPattern "owner.login"
// matches only the genuinely nested {"owner":{"login":...}}, never a flat
// key literally named "owner.login".
func classifyKeyPattern(ctx *Context, keyPath []string, value string) (string, bool) {
	for _, kp := range ctx.Cfg.IDKeyPatterns {
		if segmentsEqual(kp.pathSegments(), keyPath) {
			return fillTemplate(kp.Template, map[string]string{"value": value}), true
		}
	}
	return "", false
}

func segmentsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pathSegments splits Path on "." to get the nested key sequence it
// describes. Configured patterns are authored as plain dotted strings and
// are never expected to name a key that itself contains a literal dot.
func (kp KeyPattern) pathSegments() []string {
	return strings.Split(kp.Path, ".")
}

// classifyValuePattern implements Strategy 3's value-pattern sub-mode.
func classifyValuePattern(ctx *Context, key, s string) (string, bool) {
	for _, vp := range ctx.Cfg.ValuePatterns {
		if vp.Regex.MatchString(s) {
			table := ctx.Cfg.CrossTableMappings[key]
			return fillTemplate(vp.Template, map[string]string{
				"value":          s,
				"inferred_table": table,
			}), true
		}
	}
	return "", false
}

// classifyComposite implements Strategy 4: the link needs context captured
// from the request path plus the current value. If multiple composite
// patterns are configured for key, the first whose ContextRegex matches
// the request path wins.
func classifyComposite(ctx *Context, key, s string) (string, bool) {
	patterns, ok := ctx.Cfg.CompositePatterns[key]
	if !ok {
		return "", false
	}
	for _, cp := range patterns {
		match := cp.ContextRegex.FindStringSubmatch(ctx.RequestPath)
		if match == nil {
			continue
		}
		vars := map[string]string{"value": s}
		for i, name := range cp.ContextVars {
			if i+1 < len(match) {
				vars[name] = match[i+1]
			}
		}
		return fillTemplate(cp.URLTemplate, vars), true
	}
	return "", false
}

var templateToken = regexp.MustCompile(`\{(\w+)\}`)

func fillTemplate(tmpl string, vars map[string]string) string {
	return templateToken.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

// globMatch reports whether name matches a simple glob pattern supporting
// a single leading or trailing "*" (the only forms spec §4.9 names: "url",
// "*_url", "*_path", "href").
func globMatch(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, _ := path.Match(pattern, name)
	return ok
}
