package sources

import (
	"context"

	"streamgate/internal/domain"
)

// DirectResolver handles content ids that already are playable URLs.
// No lookup happens; the id round-trips as a single direct stream.
type DirectResolver struct{}

func NewDirectResolver() *DirectResolver { return &DirectResolver{} }

func (d *DirectResolver) Name() string { return "direct" }

func (d *DirectResolver) Supports(fp domain.Fingerprint) bool {
	return fp.Type == domain.ContentDirect
}

func (d *DirectResolver) Search(_ context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	s := domain.Stream{
		Title: "Direct stream",
		URL:   fp.RawID,
	}
	if !normalizeStream(&s, d.Name()) {
		return nil, domain.ErrInvalidInput
	}
	return []domain.Stream{s}, nil
}
