package metadata

import (
	"sort"
	"strings"
)

// Match classes, best first: exact title, title prefix, substring, then
// every query word present somewhere, then everything the upstream
// returned anyway.
const (
	matchExact = iota
	matchPrefix
	matchSubstring
	matchAllWords
	matchUpstream
)

// MatchClass scores how well a catalog entry name matches the query,
// lower is better.
func MatchClass(name, query string) int {
	n := strings.ToLower(strings.TrimSpace(name))
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case n == q:
		return matchExact
	case strings.HasPrefix(n, q):
		return matchPrefix
	case strings.Contains(n, q):
		return matchSubstring
	}
	words := strings.Fields(q)
	if len(words) > 0 {
		all := true
		for _, w := range words {
			if !strings.Contains(n, w) {
				all = false
				break
			}
		}
		if all {
			return matchAllWords
		}
	}
	return matchUpstream
}

// rankMetas stable-sorts by match class so upstream relevance breaks ties
// within each class.
func rankMetas(metas []Meta, query string) {
	sort.SliceStable(metas, func(i, j int) bool {
		return MatchClass(metas[i].Name, query) < MatchClass(metas[j].Name, query)
	})
}
