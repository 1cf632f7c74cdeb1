package sources

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// MovieIndexClient queries a YTS-style movie index. Each listed movie
// carries per-quality torrents, so results come back one stream per
// (quality, hash) pair.
type MovieIndexClient struct {
	baseURL string
	client  jsonGetter
}

func NewMovieIndexClient(baseURL string, client jsonGetter) *MovieIndexClient {
	return &MovieIndexClient{baseURL: baseURL, client: client}
}

func (m *MovieIndexClient) Name() string { return "movie-index" }

func (m *MovieIndexClient) Supports(fp domain.Fingerprint) bool {
	return fp.Type == domain.ContentMovie && fp.Title != ""
}

func (m *MovieIndexClient) Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	q := url.Values{}
	q.Set("query_term", firstWords(fp.Title, 3))
	q.Set("limit", "20")
	body, err := m.client.GetJSON(ctx, m.baseURL+"/api/v2/list_movies.json?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var out []domain.Stream
	gjson.GetBytes(body, "data.movies").ForEach(func(_, movie gjson.Result) bool {
		// The free-text query is loose; keep only the movie we asked for
		// when the fingerprint can pin it down.
		if fp.IMDBID != "" && movie.Get("imdb_code").String() != fp.IMDBID {
			return true
		}
		if fp.Year != 0 {
			if y := movie.Get("year").Int(); y != 0 && int(y) != fp.Year {
				return true
			}
		}
		title := movie.Get("title_long").String()
		if title == "" {
			title = movie.Get("title").String()
		}
		movie.Get("torrents").ForEach(func(_, tor gjson.Result) bool {
			quality := tor.Get("quality").String()
			s := domain.Stream{
				Title:    title + " " + quality + " " + tor.Get("type").String(),
				InfoHash: tor.Get("hash").String(),
				Quality:  domain.DetectQuality(quality),
				Label:    quality,
				Seeders:  int(tor.Get("seeds").Int()),
				Size:     tor.Get("size_bytes").Int(),
			}
			if normalizeStream(&s, m.Name()) {
				out = append(out, s)
			}
			return true
		})
		return true
	})
	return out, nil
}
