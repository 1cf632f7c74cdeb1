package domain

import (
	"errors"
	"strconv"
	"strings"
)

// ContentType distinguishes the lookup shapes connectors understand.
type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
	ContentTV     ContentType = "tv"
	ContentDirect ContentType = "direct"
)

// Fingerprint identifies one piece of content across all connectors.
// For series the IMDB id is combined with season/episode; for direct
// streams RawID carries the URL itself.
type Fingerprint struct {
	Type    ContentType
	RawID   string
	IMDBID  string
	Season  int
	Episode int

	// Best-effort metadata hints resolved before aggregation.
	Title string
	Year  int
}

// ParseFingerprint decodes a content id of the forms
// "tt1234567", "tt1234567:1:2", "ustv-abc", or a direct http(s) URL.
func ParseFingerprint(contentType, rawID string) (Fingerprint, error) {
	fp := Fingerprint{RawID: rawID}
	if rawID == "" {
		return fp, errors.New("content id is required")
	}

	if strings.HasPrefix(rawID, "http://") || strings.HasPrefix(rawID, "https://") {
		fp.Type = ContentDirect
		return fp, nil
	}
	if strings.HasPrefix(rawID, "ustv") {
		fp.Type = ContentTV
		return fp, nil
	}

	parts := strings.Split(rawID, ":")
	if !strings.HasPrefix(parts[0], "tt") {
		return fp, errors.New("unrecognized content id: " + rawID)
	}
	fp.IMDBID = parts[0]

	switch {
	case len(parts) >= 3:
		season, err := strconv.Atoi(parts[1])
		if err != nil {
			return fp, errors.New("invalid season in content id: " + rawID)
		}
		episode, err := strconv.Atoi(parts[2])
		if err != nil {
			return fp, errors.New("invalid episode in content id: " + rawID)
		}
		fp.Type = ContentSeries
		fp.Season = season
		fp.Episode = episode
	case contentType == string(ContentSeries):
		fp.Type = ContentSeries
	default:
		fp.Type = ContentMovie
	}
	return fp, nil
}

// EpisodeTag renders the canonical SxxEyy suffix for series queries.
func (fp Fingerprint) EpisodeTag() string {
	if fp.Type != ContentSeries || fp.Season == 0 {
		return ""
	}
	return "S" + pad2(fp.Season) + "E" + pad2(fp.Episode)
}

// StremioID rebuilds the id used in addon stream paths.
func (fp Fingerprint) StremioID() string {
	if fp.Type == ContentSeries && fp.Season > 0 {
		return fp.IMDBID + ":" + strconv.Itoa(fp.Season) + ":" + strconv.Itoa(fp.Episode)
	}
	return fp.RawID
}

// NumericIMDB strips the tt prefix, as some indexers want the bare number.
func (fp Fingerprint) NumericIMDB() string {
	return strings.TrimPrefix(fp.IMDBID, "tt")
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
