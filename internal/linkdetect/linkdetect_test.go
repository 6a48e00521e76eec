package linkdetect

import (
	"regexp"
	"strings"
	"testing"
)

func TestStrategy1FullURLStripsBaseAndPrefixes(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		BaseURLStrip:  "https://api.github.com",
		GatewayPrefix: "/gateway/github",
	}}

	html, err := Render(ctx, []byte(`{"repos_url":"https://api.github.com/users/octocat/repos"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/gateway/github/users/octocat/repos"`) {
		t.Errorf("Render() = %s, want stripped+prefixed href", html)
	}
}

func TestStrategy1FullURLWrapsInProxyFormWhenNoPrefixMatch(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		BaseURLStrip:  "https://api.github.com",
		GatewayPrefix: "/gateway/github",
	}}

	html, err := Render(ctx, []byte(`{"site":"https://example.com/page"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/gateway/github?target=https%3A%2F%2Fexample.com%2Fpage"`) {
		t.Errorf("Render() = %s, want proxy-form href", html)
	}
}

func TestStrategy2PartialURLRequiresKeyPatternMatch(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		GatewayPrefix: "/gateway/api",
		KeyPatterns:   []string{"url", "*_url", "*_path", "href"},
	}}

	html, err := Render(ctx, []byte(`{"next_url":"/posts?page=2","label":"/posts?page=2"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/gateway/api/posts?page=2"`) {
		t.Errorf("Render() missing matched next_url anchor: %s", html)
	}
	if strings.Contains(html, `class="json-link">/posts?page=2</a><span class="json-string">&#34;/posts?page=2&#34;</span>`) {
		// not a strict assertion, just a guard the test doesn't accidentally pass both ways
	}
	if strings.Count(html, "json-link") != 1 {
		t.Errorf("Render() = %s, want exactly one linkified value (label doesn't match a key pattern)", html)
	}
}

func TestStrategy3KeyPatternOnlyMatchesNestedPath(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		IDKeyPatterns: []KeyPattern{{Path: "owner.login", Template: "/users/{value}"}},
	}}

	nested, err := Render(ctx, []byte(`{"owner":{"login":"octocat"}}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(nested, `href="/users/octocat"`) {
		t.Errorf("Render(nested) = %s, want linkified owner.login", nested)
	}

	flattened, err := Render(ctx, []byte(`{"owner.login":"octocat"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(flattened, "json-link") {
		t.Errorf("Render(flattened) = %s, a flattened key must not match a nested key-pattern", flattened)
	}
}

func TestStrategy3KeyPatternMatchesIntegers(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		IDKeyPatterns: []KeyPattern{{Path: "userId", Template: "/users/{value}"}},
	}}

	html, err := Render(ctx, []byte(`{"userId":7,"id":1,"title":"t"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/users/7"`) {
		t.Errorf("Render() = %s, want linkified userId", html)
	}
	if strings.Contains(html, `href="/users/1"`) {
		t.Errorf("Render() = %s, id should not be linkified (no key-pattern for it)", html)
	}
}

func TestStrategy3ValuePatternUsesInferredTable(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		ValuePatterns: []ValuePattern{
			{Regex: regexp.MustCompile(`^cus_[A-Za-z0-9]+$`), Template: "/{inferred_table}/{value}"},
		},
		CrossTableMappings: map[string]string{"customer": "customers"},
	}}

	html, err := Render(ctx, []byte(`{"customer":"cus_5"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/customers/cus_5"`) {
		t.Errorf("Render() = %s, want /customers/cus_5", html)
	}
}

func TestStrategy4CompositeUsesRequestPathContext(t *testing.T) {
	t.Parallel()
	ctx := &Context{
		RequestPath: "/gateway/github/users/octocat/starred",
		Cfg: Config{
			CompositePatterns: map[string][]CompositePattern{
				"id": {
					{
						ContextRegex: regexp.MustCompile(`/users/([^/]+)/starred$`),
						ContextVars:  []string{"user"},
						URLTemplate:  "/users/{user}/repos/{value}",
					},
				},
			},
		},
	}

	html, err := Render(ctx, []byte(`{"id":"42"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/users/octocat/repos/42"`) {
		t.Errorf("Render() = %s, want composite href using captured user", html)
	}
}

func TestPriorityStrategy1BeatsStrategy2(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		BaseURLStrip:  "https://upstream.example.com",
		GatewayPrefix: "/gw",
		KeyPatterns:   []string{"url"},
	}}

	// A full URL under a key that would also match Strategy 2's glob —
	// Strategy 1 must win since it's a literal URL, not a partial one.
	html, err := Render(ctx, []byte(`{"url":"https://upstream.example.com/things/1"}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `href="/gw/things/1"`) {
		t.Errorf("Render() = %s, want Strategy 1's stripped href", html)
	}
}

func TestEmptyStringsAndNullsNeverLinkify(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{
		KeyPatterns: []string{"url"},
	}}

	html, err := Render(ctx, []byte(`{"url":"","other":null}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "json-link") {
		t.Errorf("Render() = %s, empty string must not linkify", html)
	}
	if !strings.Contains(html, `json-null`) {
		t.Errorf("Render() = %s, want json-null for null", html)
	}
}

func TestRenderTotalityEveryStringAppearsOnce(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{}}
	html, err := Render(ctx, []byte(`{"a":"x","b":["y","z"],"c":{"d":"w"}}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Count each string in its rendered, quoted form: bare letters also occur
	// in the markup itself (the "y" in class="json-key").
	for _, s := range []string{"x", "y", "z", "w"} {
		want := "&#34;" + s + "&#34;"
		if strings.Count(html, want) != 1 {
			t.Errorf("Render() contains %q %d times, want exactly 1: %s", want, strings.Count(html, want), html)
		}
	}
}

func TestRenderBooleanAndNumberSyntaxClasses(t *testing.T) {
	t.Parallel()
	ctx := &Context{Cfg: Config{}}
	html, err := Render(ctx, []byte(`{"ok":true,"count":3}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, `<span class="json-boolean">true</span>`) {
		t.Errorf("Render() = %s, want json-boolean span", html)
	}
	if !strings.Contains(html, `<span class="json-number">3</span>`) {
		t.Errorf("Render() = %s, want json-number span", html)
	}
}

func TestGlobMatchKeyPatterns(t *testing.T) {
	t.Parallel()
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"url", "url", true},
		{"url", "other_url", false},
		{"*_url", "next_url", true},
		{"*_path", "base_path", true},
		{"href", "href", true},
		{"*_url", "url", false},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.name); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
