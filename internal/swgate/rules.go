package swgate

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Rule routes matching paths around the worker straight to the origin.
type Rule struct {
	Match             string   `yaml:"match"`
	Priority          int      `yaml:"priority"`
	Bypass            bool     `yaml:"bypass"`
	BypassWhenCookies []string `yaml:"bypassWhenCookies"`

	// compiled
	matchers []pathPrefixMatcher
}

type pathPrefixMatcher struct{ Prefix string }

func (m pathPrefixMatcher) Match(path string) bool { return strings.HasPrefix(path, m.Prefix) }

// compileRules parses every match expression and orders rules by priority.
func compileRules(rules []Rule) error {
	for i := range rules {
		r := &rules[i]
		ms, err := parseMatch(r.Match)
		if err != nil {
			return fmt.Errorf("rules[%d].match: %w", i, err)
		}
		r.matchers = ms
		if !r.Bypass && len(r.BypassWhenCookies) == 0 {
			return fmt.Errorf("rules[%d]: needs bypass or bypassWhenCookies", i)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return nil
}

// parseMatch accepts "PathPrefix(/a) | PathPrefix(/b)".
func parseMatch(expr string) ([]pathPrefixMatcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty match")
	}

	var out []pathPrefixMatcher
	for _, p := range strings.Split(expr, "|") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		inside, ok := strings.CutPrefix(p, "PathPrefix(")
		if !ok || !strings.HasSuffix(inside, ")") {
			return nil, fmt.Errorf("only PathPrefix(...) supported, got %q", p)
		}
		inside = strings.TrimSpace(strings.TrimSuffix(inside, ")"))
		if !strings.HasPrefix(inside, "/") {
			return nil, fmt.Errorf("invalid prefix %q", inside)
		}
		out = append(out, pathPrefixMatcher{Prefix: inside})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid matchers")
	}
	return out, nil
}

func (r *Rule) Matches(path string) bool {
	for _, m := range r.matchers {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// bypassSource reports why r must skip the worker, or "" when the worker may
// handle it. Only the first matching rule applies.
func bypassSource(rules []Rule, r *http.Request) string {
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(r.URL.Path) {
			continue
		}
		if rule.Bypass {
			return SourceBypass
		}
		if hasAnyCookie(r, rule.BypassWhenCookies) {
			return SourceBypassCookie
		}
		return ""
	}
	return ""
}

func hasAnyCookie(r *http.Request, names []string) bool {
	if len(names) == 0 {
		return false
	}
	need := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			need[n] = struct{}{}
		}
	}
	for _, c := range r.Cookies() {
		if _, ok := need[c.Name]; ok {
			return true
		}
	}
	return false
}
