package aggregate

import (
	"sort"

	"streamgate/internal/domain"
)

const seederCap = 9999

// score orders streams: quality tier dominates, seeders break ties within
// a tier. Seeders are capped so a wildly-seeded SD rip never outranks a
// 1080p release.
func score(s domain.Stream) int {
	seeders := s.Seeders
	if seeders > seederCap {
		seeders = seederCap
	}
	return s.Quality.Rank()*10000 + seeders
}

// dedupe keeps the first occurrence of each info-hash. Streams without a
// hash (direct locators) are always kept.
func dedupe(streams []domain.Stream) []domain.Stream {
	seen := make(map[string]struct{}, len(streams))
	out := streams[:0]
	for _, s := range streams {
		if s.InfoHash != "" {
			if _, dup := seen[s.InfoHash]; dup {
				continue
			}
			seen[s.InfoHash] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// rank sorts streams best-first. The sort is stable so equal-score streams
// keep their merge order.
func rank(streams []domain.Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		return score(streams[i]) > score(streams[j])
	})
}
