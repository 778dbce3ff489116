package finance

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Matchable is implemented by records the resolver can look up by name.
type Matchable interface {
	MatchName() string
	MatchCategory() string
}

func (a Allocation) MatchName() string       { return a.Name }
func (a Allocation) MatchCategory() string   { return string(a.Category) }
func (s Subscription) MatchName() string     { return s.Name }
func (s Subscription) MatchCategory() string { return string(s.Category) }
func (d Debt) MatchName() string             { return d.Name }
func (d Debt) MatchCategory() string         { return "" }

// Resolve returns the first item whose name contains query, ignoring case.
// A query contained in the item's category is an equally valid match. Ties
// are not ranked: the first match in input order wins.
func Resolve[T Matchable](items []T, query string) (T, bool) {
	var zero T
	q := normalize(query)
	if q == "" {
		return zero, false
	}
	for _, it := range items {
		if strings.Contains(normalize(it.MatchName()), q) {
			return it, true
		}
		if c := normalize(it.MatchCategory()); c != "" && strings.Contains(c, q) {
			return it, true
		}
	}
	return zero, false
}

// Filter returns every item Resolve would accept, in input order. An empty
// query keeps everything.
func Filter[T Matchable](items []T, query string) []T {
	q := normalize(query)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if q == "" || strings.Contains(normalize(it.MatchName()), q) {
			out = append(out, it)
			continue
		}
		if c := normalize(it.MatchCategory()); c != "" && strings.Contains(c, q) {
			out = append(out, it)
		}
	}
	return out
}

func FindAllocation(allocs []Allocation, name string) (Allocation, bool) {
	return Resolve(allocs, name)
}

func FindSubscription(subs []Subscription, name string) (Subscription, bool) {
	return Resolve(subs, name)
}

func FindDebt(debts []Debt, name string) (Debt, bool) {
	return Resolve(debts, name)
}

// WalletFor resolves name, or when name is blank the first allocation in
// fallback category.
func WalletFor(allocs []Allocation, name string, fallback AllocationCategory) (Allocation, bool) {
	if normalize(name) != "" {
		return Resolve(allocs, name)
	}
	for _, a := range allocs {
		if strings.EqualFold(string(a.Category), string(fallback)) {
			return a, true
		}
	}
	return Allocation{}, false
}

// suggestThreshold is the largest normalised edit distance still worth suggesting.
const suggestThreshold = 0.5

// Suggest returns the name closest to query by edit distance. It only feeds
// "did you mean" hints and never changes what Resolve matches.
func Suggest[T Matchable](items []T, query string) (string, bool) {
	q := normalize(query)
	if q == "" {
		return "", false
	}
	best, bestScore := "", suggestThreshold
	for _, it := range items {
		name := normalize(it.MatchName())
		if name == "" {
			continue
		}
		dist := levenshtein.ComputeDistance(q, name)
		maxlen := len(q)
		if len(name) > maxlen {
			maxlen = len(name)
		}
		if score := float64(dist) / float64(maxlen); score < bestScore {
			best, bestScore = it.MatchName(), score
		}
	}
	return best, best != ""
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
