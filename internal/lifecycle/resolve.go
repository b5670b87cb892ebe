package lifecycle

import "strings"

// aliasPrefix marks friendly "family:size" shorthands.
const aliasPrefix = "gpt-oss:"

// defaultCanonicalID is returned for unrecognized alias sizes. Falling back
// is documented policy, not an error.
const defaultCanonicalID = "openai/gpt-oss-120b"

// aliasTable maps shorthand sizes to canonical backing identifiers.
var aliasTable = map[string]string{
	"120b": "openai/gpt-oss-120b",
	"20b":  "openai/gpt-oss-20b",
}

// ResolveAlias maps a friendly id like "gpt-oss:120b" to its canonical
// backing identifier. Non-alias ids pass through unchanged; unrecognized
// sizes fall back to the default canonical id. Pure function, never errors.
func ResolveAlias(id string) string {
	if !strings.HasPrefix(id, aliasPrefix) {
		return id
	}
	size := strings.ToLower(strings.TrimPrefix(id, aliasPrefix))
	if canonical, ok := aliasTable[size]; ok {
		return canonical
	}
	return defaultCanonicalID
}

// Resolve maps a requested id (or the configured default when empty) to the
// canonical id this manager targets. Alias mapping is applied only when the
// alias table is enabled.
func (m *Manager) Resolve(requested string) string {
	id := requested
	if id == "" {
		id = m.cfg.DefaultModel
	}
	if !m.cfg.Aliases {
		return id
	}
	return ResolveAlias(id)
}
