package contracts

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StringSet is a normalized, deduplicated set of policy or flag values.
// Sets built by NormalizeSet are never mutated afterwards.
type StringSet map[string]struct{}

// NormalizeSet trims every value, drops empties, applies Unicode NFC so that
// visually identical codes compare equal, and deduplicates the result.
func NormalizeSet(values []string) StringSet {
	out := make(StringSet, len(values))
	for _, v := range values {
		s := NormalizeValue(v)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}

// NormalizeValue applies the single-value half of NormalizeSet.
func NormalizeValue(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}

// Has reports whether v is a member of the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of members.
func (s StringSet) Len() int { return len(s) }

// Sorted returns the members in ascending lexicographic order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the members of s that are also in other, sorted.
func (s StringSet) Intersect(other StringSet) []string {
	out := make([]string, 0)
	for v := range s {
		if other.Has(v) {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// UniqueSorted deduplicates reason codes, drops blank entries and sorts the
// remainder ascending. The result is never nil so it always serializes as a
// JSON array.
func UniqueSorted(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// PrefixAll returns reasons with prefix prepended to each entry, normalized.
func PrefixAll(prefix string, reasons []string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, prefix+r)
	}
	return UniqueSorted(out)
}
