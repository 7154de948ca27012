package swgate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatch(t *testing.T) {
	ms, err := parseMatch("PathPrefix(/api) | PathPrefix( /account )")
	require.NoError(t, err)
	assert.Equal(t, []pathPrefixMatcher{{Prefix: "/api"}, {Prefix: "/account"}}, ms)

	for _, bad := range []string{"", "|", "Path(/a)", "PathPrefix(api)", "PathPrefix(/a"} {
		_, err := parseMatch(bad)
		assert.Error(t, err, bad)
	}
}

func TestBypassSource(t *testing.T) {
	rules := []Rule{
		{Match: "PathPrefix(/account)", Priority: 10, BypassWhenCookies: []string{"session", " remember "}},
		{Match: "PathPrefix(/account/export)", Priority: 1, Bypass: true},
		{Match: "PathPrefix(/api)", Priority: 5, Bypass: true},
	}
	require.NoError(t, compileRules(rules))
	assert.Equal(t, "PathPrefix(/account/export)", rules[0].Match, "lowest priority first")

	tests := []struct {
		name   string
		path   string
		cookie string
		want   string
	}{
		{name: "no rule", path: "/today", cookie: "session", want: ""},
		{name: "bypass", path: "/api/me", want: SourceBypass},
		{name: "cookie present", path: "/account", cookie: "session", want: SourceBypassCookie},
		{name: "trimmed cookie name", path: "/account", cookie: "remember", want: SourceBypassCookie},
		{name: "other cookie", path: "/account", cookie: "theme", want: ""},
		{name: "anonymous", path: "/account", want: ""},
		{name: "higher priority rule wins", path: "/account/export", want: SourceBypass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: tt.cookie, Value: "1"})
			}
			assert.Equal(t, tt.want, bypassSource(rules, r))
		})
	}
}
