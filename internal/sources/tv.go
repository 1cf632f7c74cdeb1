package sources

import (
	"context"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// TVClient resolves live-channel ids against a channel directory that
// maps each id to an HLS locator.
type TVClient struct {
	baseURL string
	client  jsonGetter
}

func NewTVClient(baseURL string, client jsonGetter) *TVClient {
	return &TVClient{baseURL: baseURL, client: client}
}

func (t *TVClient) Name() string { return "tv" }

func (t *TVClient) Supports(fp domain.Fingerprint) bool {
	return fp.Type == domain.ContentTV && t.baseURL != ""
}

func (t *TVClient) Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	body, err := t.client.GetJSON(ctx, t.baseURL+"/channels/"+fp.RawID+".json")
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	s := domain.Stream{
		Title: doc.Get("name").String(),
		URL:   doc.Get("url").String(),
	}
	if s.Title == "" {
		s.Title = fp.RawID
	}
	if !normalizeStream(&s, t.Name()) {
		return nil, domain.ErrNotFound
	}
	return []domain.Stream{s}, nil
}
