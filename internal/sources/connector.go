package sources

import (
	"context"
	"strconv"
	"strings"

	"streamgate/internal/domain"
)

// Connector discovers playable streams for one upstream source.
// Implementations never return partial results with an error: a failed
// lookup returns (nil, err) and the caller decides what to do with it.
type Connector interface {
	Name() string
	Supports(fp domain.Fingerprint) bool
	Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error)
}

// firstWords returns up to n whitespace-separated words of s joined by
// single spaces.
func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// parseCount parses loosely-typed numeric fields indexers return as
// strings. Invalid input maps to zero.
func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseSize(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// normalizeStream fills derived fields and validates the closed shape.
// Streams that fail validation are dropped by returning false.
func normalizeStream(s *domain.Stream, source string) bool {
	s.Source = source
	if s.InfoHash != "" {
		h, err := domain.NormalizeInfoHash(s.InfoHash)
		if err != nil {
			return false
		}
		s.InfoHash = h
	}
	if s.Quality == domain.QualityUnknown {
		s.Quality = domain.DetectQuality(s.Title)
	}
	if s.Label == "" {
		s.Label = s.Quality.String()
	}
	return s.Validate() == nil
}
