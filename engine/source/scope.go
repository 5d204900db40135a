package source

import "github.com/mwantia/mdquery/data"

// Search scopes understood by every source, named after the metadata service constants.
const (
	ScopeHome            = "kMDQueryScopeHome"
	ScopeComputer        = "kMDQueryScopeComputer"
	ScopeNetwork         = "kMDQueryScopeNetwork"
	ScopeAllIndexed      = "kMDQueryScopeAllIndexed"
	ScopeComputerIndexed = "kMDQueryScopeComputerIndexed"
	ScopeNetworkIndexed  = "kMDQueryScopeNetworkIndexed"
)

// ResolveScopes turns scopes into deduplicated key prefixes.
// Home resolves to home, the computer scopes to the root and the network scopes
// to nothing. Any other value is used as a path. No scopes at all means the root.
func ResolveScopes(scopes []string, home string) []string {
	if len(scopes) == 0 {
		return []string{"/"}
	}

	prefixes := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		var prefix string
		switch scope {
		case ScopeHome:
			prefix = data.CleanKey(home)
		case ScopeComputer, ScopeAllIndexed, ScopeComputerIndexed:
			prefix = "/"
		case ScopeNetwork, ScopeNetworkIndexed:
			continue
		default:
			prefix = data.CleanKey(scope)
		}

		prefixes = appendPrefix(prefixes, prefix)
	}

	return prefixes
}

// appendPrefix adds prefix unless an existing prefix already covers it,
// dropping existing prefixes that prefix covers.
func appendPrefix(prefixes []string, prefix string) []string {
	kept := prefixes[:0]
	for _, existing := range prefixes {
		if data.HasPrefix(prefix, existing) {
			return prefixes
		}
		if !data.HasPrefix(existing, prefix) {
			kept = append(kept, existing)
		}
	}
	return append(kept, prefix)
}
