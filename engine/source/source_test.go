package source

import (
	"slices"
	"testing"
)

func TestResolveScopes(t *testing.T) {
	tests := map[string]struct {
		scopes []string
		want   []string
	}{
		"Empty":       {nil, []string{"/"}},
		"Home":        {[]string{ScopeHome}, []string{"/home/user"}},
		"Computer":    {[]string{ScopeHome, ScopeComputer}, []string{"/"}},
		"Network":     {[]string{ScopeNetwork, ScopeNetworkIndexed}, []string{}},
		"Paths":       {[]string{"/srv/a", "srv/b/"}, []string{"/srv/a", "/srv/b"}},
		"Covered":     {[]string{"/srv", "/srv/a"}, []string{"/srv"}},
		"Covering":    {[]string{"/srv/a", "/srv/b", "/srv"}, []string{"/srv"}},
		"NotCovering": {[]string{"/srv/a", "/srv/ab"}, []string{"/srv/a", "/srv/ab"}},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			got := ResolveScopes(test.scopes, "/home/user")
			if !slices.Equal(got, test.want) {
				tst.Fatalf("ResolveScopes(%v) = %v, want %v", test.scopes, got, test.want)
			}
		})
	}
}

func TestInScope(t *testing.T) {
	prefixes := []string{"/srv/a", "/var"}

	for key, want := range map[string]bool{
		"/srv/a":      true,
		"/srv/a/b.go": true,
		"/srv/ab":     false,
		"/var/log":    true,
		"/etc":        false,
	} {
		if got := InScope(key, prefixes); got != want {
			t.Errorf("InScope(%q) = %v, want %v", key, got, want)
		}
	}
}
