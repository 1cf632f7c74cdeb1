package metadata

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// jsonGetter matches httpx.Client.
type jsonGetter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

// resolveDeadline bounds title/year resolution; metadata is best-effort
// and a slow catalog must not stall stream searches.
const resolveDeadline = 8 * time.Second

// Meta is one catalog entry.
type Meta struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Poster string `json:"poster,omitempty"`
	Year   string `json:"year,omitempty"`
}

// Episode is one entry of a series' video list.
type Episode struct {
	ID      string `json:"id"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Title   string `json:"title"`
	Aired   string `json:"aired,omitempty"`
}

// Client reads a cinemeta-compatible catalog.
type Client struct {
	baseURL string
	http    jsonGetter
	logger  *slog.Logger
}

func NewClient(baseURL string, http jsonGetter, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, http: http, logger: logger}
}

var yearRe = regexp.MustCompile(`\d{4}`)

// Resolve fills the fingerprint's title and year hints. Failures are
// logged and swallowed: connectors that need a title simply skip the
// lookup when the hint stays empty.
func (c *Client) Resolve(ctx context.Context, fp *domain.Fingerprint) {
	if fp.IMDBID == "" || fp.Title != "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, resolveDeadline)
	defer cancel()

	metaType := string(fp.Type)
	body, err := c.http.GetJSON(ctx, c.baseURL+"/meta/"+metaType+"/"+fp.IMDBID+".json")
	if err != nil {
		c.logger.Warn("metadata resolve failed",
			slog.String("imdbId", fp.IMDBID),
			slog.String("error", err.Error()))
		return
	}

	meta := gjson.GetBytes(body, "meta")
	fp.Title = meta.Get("name").String()
	// Year may live in "year" ("1999") or "releaseInfo" ("1999-2003").
	raw := meta.Get("year").String()
	if raw == "" {
		raw = meta.Get("releaseInfo").String()
	}
	if m := yearRe.FindString(raw); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			fp.Year = y
		}
	}
}

// Fetch returns the full upstream meta document for passthrough routes.
func (c *Client) Fetch(ctx context.Context, metaType, id string) ([]byte, error) {
	return c.http.GetJSON(ctx, c.baseURL+"/meta/"+metaType+"/"+url.PathEscape(id)+".json")
}

// Catalog returns one page of a catalog listing. A positive skip selects
// a later page using the catalog's skip extra.
func (c *Client) Catalog(ctx context.Context, metaType, catalogID string, skip int) ([]Meta, error) {
	u := c.baseURL + "/catalog/" + metaType + "/" + url.PathEscape(catalogID)
	if skip > 0 {
		u += "/skip=" + strconv.Itoa(skip)
	}
	body, err := c.http.GetJSON(ctx, u+".json")
	if err != nil {
		return nil, err
	}
	return ParseMetas(body), nil
}

// Episodes lists a series' videos in airing order.
func (c *Client) Episodes(ctx context.Context, imdbID string) ([]Episode, error) {
	body, err := c.http.GetJSON(ctx, c.baseURL+"/meta/series/"+url.PathEscape(imdbID)+".json")
	if err != nil {
		return nil, err
	}
	var out []Episode
	gjson.GetBytes(body, "meta.videos").ForEach(func(_, v gjson.Result) bool {
		ep := Episode{
			ID:      v.Get("id").String(),
			Season:  int(v.Get("season").Int()),
			Episode: int(v.Get("episode").Int()),
			Title:   v.Get("name").String(),
			Aired:   v.Get("released").String(),
		}
		if ep.Title == "" {
			ep.Title = v.Get("title").String()
		}
		out = append(out, ep)
		return true
	})
	return out, nil
}

// Search queries the catalog's search endpoint and re-ranks the results
// locally, exact and prefix matches first.
func (c *Client) Search(ctx context.Context, metaType, query string) ([]Meta, error) {
	body, err := c.http.GetJSON(ctx, c.baseURL+"/catalog/"+metaType+"/top/search="+url.PathEscape(query)+".json")
	if err != nil {
		return nil, err
	}
	metas := ParseMetas(body)
	rankMetas(metas, query)
	return metas, nil
}

// ParseMetas extracts the "metas" array of any catalog-shaped response.
func ParseMetas(body []byte) []Meta {
	var metas []Meta
	gjson.GetBytes(body, "metas").ForEach(func(_, m gjson.Result) bool {
		year := m.Get("year").String()
		if year == "" {
			year = m.Get("releaseInfo").String()
		}
		metas = append(metas, Meta{
			ID:     m.Get("id").String(),
			Type:   m.Get("type").String(),
			Name:   m.Get("name").String(),
			Poster: m.Get("poster").String(),
			Year:   year,
		})
		return true
	})
	return metas
}
