package domain

import (
	"errors"
	"regexp"
	"strings"
)

// QualityTier buckets a release into one of the recognised video qualities.
// The zero value means the quality could not be determined from the name.
type QualityTier int

const (
	QualityUnknown QualityTier = iota
	QualitySD
	Quality720p
	Quality1080p
	Quality4K
)

func (q QualityTier) String() string {
	switch q {
	case Quality4K:
		return "4K"
	case Quality1080p:
		return "1080p"
	case Quality720p:
		return "720p"
	case QualitySD:
		return "SD"
	default:
		return "unknown"
	}
}

// Rank orders tiers for sorting. Higher is better. An undetected quality
// ranks with 720p, not below SD: a release that names no resolution is far
// more likely a web rip than a cam.
func (q QualityTier) Rank() int {
	switch q {
	case Quality4K:
		return 4
	case Quality1080p:
		return 3
	case QualitySD:
		return 1
	default:
		return 2
	}
}

// DetectQuality classifies a release name by keyword. The first matching
// tier wins, checking higher tiers before lower ones so "2160p BluRay 1080p
// upscale" lands in 4K. A name matching nothing maps to 720p.
func DetectQuality(name string) QualityTier {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, "2160p", "4k", "uhd", "2160"):
		return Quality4K
	case containsAny(n, "1080p", "1080", "fullhd", "fhd"):
		return Quality1080p
	case containsAny(n, "720p", "720", "hd"):
		return Quality720p
	case containsAny(n, "480p", "360p", "dvdrip", "sdtv", "cam", "ts "):
		return QualitySD
	default:
		return Quality720p
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var infoHashRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// NormalizeInfoHash lowercases a hex info-hash and validates its shape.
func NormalizeInfoHash(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	if !infoHashRe.MatchString(h) {
		return "", errors.New("info hash must be 40 hex characters")
	}
	return h, nil
}

// Stream is a single playable candidate discovered by a connector.
// Either InfoHash (swarm-backed) or URL (direct locator) is set, never both.
type Stream struct {
	Title    string      `json:"title"`
	InfoHash string      `json:"infoHash,omitempty"`
	URL      string      `json:"url,omitempty"`
	Quality  QualityTier `json:"-"`
	Label    string      `json:"quality"`
	Seeders  int         `json:"seeders"`
	Size     int64       `json:"size,omitempty"`
	Source   string      `json:"source"`
}

// Validate checks the closed stream shape.
func (s Stream) Validate() error {
	if s.Title == "" {
		return errors.New("stream title is required")
	}
	if s.InfoHash == "" && s.URL == "" {
		return errors.New("stream needs an info hash or a direct url")
	}
	if s.InfoHash != "" && s.URL != "" {
		return errors.New("stream cannot carry both an info hash and a url")
	}
	if s.InfoHash != "" && !infoHashRe.MatchString(s.InfoHash) {
		return errors.New("invalid info hash: " + s.InfoHash)
	}
	if s.Seeders < 0 {
		return errors.New("seeders must not be negative")
	}
	return nil
}
