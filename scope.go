package mdquery

import "github.com/mwantia/mdquery/engine/source"

// Search scopes, see source.ResolveScopes for how each one maps to keys.
const (
	ScopeHome            = source.ScopeHome
	ScopeComputer        = source.ScopeComputer
	ScopeNetwork         = source.ScopeNetwork
	ScopeAllIndexed      = source.ScopeAllIndexed
	ScopeComputerIndexed = source.ScopeComputerIndexed
	ScopeNetworkIndexed  = source.ScopeNetworkIndexed
)

// ResultCountNoLimit passed as max result count means the result set is not capped.
const ResultCountNoLimit = 0
