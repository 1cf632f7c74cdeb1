package sources

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// FreeTextClient queries an apibay-style free-text index. The index is
// picky about query length, so the search retries with progressively
// shorter queries until something comes back:
//
//	1. first five title words plus the release year
//	2. first four title words
//	3. first three title words
//
// An empty result set is signalled by a single row with id "0".
type FreeTextClient struct {
	baseURL string
	client  jsonGetter
}

func NewFreeTextClient(baseURL string, client jsonGetter) *FreeTextClient {
	return &FreeTextClient{baseURL: baseURL, client: client}
}

func (f *FreeTextClient) Name() string { return "freetext-index" }

func (f *FreeTextClient) Supports(fp domain.Fingerprint) bool {
	switch fp.Type {
	case domain.ContentMovie, domain.ContentSeries:
		return fp.Title != ""
	default:
		return false
	}
}

func (f *FreeTextClient) Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	var lastErr error
	for _, query := range f.queries(fp) {
		streams, err := f.query(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		if len(streams) > 0 {
			return streams, nil
		}
	}
	return nil, lastErr
}

func (f *FreeTextClient) queries(fp domain.Fingerprint) []string {
	base := fp.Title
	if tag := fp.EpisodeTag(); tag != "" {
		base = fp.Title + " " + tag
	}
	first := firstWords(base, 5)
	if fp.Year != 0 && fp.Type == domain.ContentMovie {
		first += " " + strconv.Itoa(fp.Year)
	}
	return []string{first, firstWords(base, 4), firstWords(base, 3)}
}

func (f *FreeTextClient) query(ctx context.Context, query string) ([]domain.Stream, error) {
	body, err := f.client.GetJSON(ctx, f.baseURL+"/q.php?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, nil
	}
	var out []domain.Stream
	rows.ForEach(func(_, row gjson.Result) bool {
		if row.Get("id").String() == "0" {
			return false
		}
		seeders := parseCount(row.Get("seeders").String())
		if seeders == 0 {
			return true
		}
		s := domain.Stream{
			Title:    row.Get("name").String(),
			InfoHash: row.Get("info_hash").String(),
			Seeders:  seeders,
			Size:     parseSize(row.Get("size").String()),
		}
		if normalizeStream(&s, f.Name()) {
			out = append(out, s)
		}
		return true
	})
	return out, nil
}
