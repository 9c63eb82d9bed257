package signing

import (
	"sort"
	"strings"
	"time"
)

// Generator produces signatures for one scheme. Implementations must be
// stateless: the same request always yields the same result.
type Generator interface {
	// Scheme returns the registry key for this generator.
	Scheme() string
	// Generate signs the request.
	Generate(req Request) (Result, error)
	// Match reports whether the parameter shape looks like this scheme,
	// used when the caller did not pick one explicitly.
	Match(params map[string]string) bool
	// Tolerance is the server-side validity window for signatures of this
	// scheme; the cache never keeps an entry longer than this.
	Tolerance() time.Duration
}

// sortedKeys returns the parameter keys in lexicographic order.
func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonicalQuery renders params as k=v pairs joined by '&' in key order.
func canonicalQuery(params map[string]string) string {
	keys := sortedKeys(params)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// copyParams shallow-copies a parameter map so signed output never aliases
// caller state.
func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	return out
}
