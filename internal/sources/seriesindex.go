package sources

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// SeriesIndexClient queries an EZTV-style episode index by bare IMDB
// number and filters the response down to the requested episode.
type SeriesIndexClient struct {
	baseURL string
	client  jsonGetter
}

func NewSeriesIndexClient(baseURL string, client jsonGetter) *SeriesIndexClient {
	return &SeriesIndexClient{baseURL: baseURL, client: client}
}

func (s *SeriesIndexClient) Name() string { return "series-index" }

func (s *SeriesIndexClient) Supports(fp domain.Fingerprint) bool {
	return fp.Type == domain.ContentSeries && fp.IMDBID != ""
}

func (s *SeriesIndexClient) Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	q := url.Values{}
	q.Set("imdb_id", fp.NumericIMDB())
	q.Set("limit", "50")
	body, err := s.client.GetJSON(ctx, s.baseURL+"/api/get-torrents?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var out []domain.Stream
	gjson.GetBytes(body, "torrents").ForEach(func(_, tor gjson.Result) bool {
		if fp.Season != 0 {
			if int(tor.Get("season").Int()) != fp.Season || int(tor.Get("episode").Int()) != fp.Episode {
				return true
			}
		}
		st := domain.Stream{
			Title:    tor.Get("title").String(),
			InfoHash: tor.Get("hash").String(),
			Seeders:  int(tor.Get("seeds").Int()),
			Size:     tor.Get("size_bytes").Int(),
		}
		if normalizeStream(&st, s.Name()) {
			out = append(out, st)
		}
		return true
	})
	return out, nil
}
