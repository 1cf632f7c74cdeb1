package sources

import (
	"context"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// AddonClient queries one installed stremio-compatible addon for streams.
// The addon must declare the "stream" resource in its manifest.
type AddonClient struct {
	addon  domain.Addon
	client jsonGetter
}

// jsonGetter is the slice of httpx.Client the connectors need.
type jsonGetter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

func NewAddonClient(addon domain.Addon, client jsonGetter) *AddonClient {
	return &AddonClient{addon: addon, client: client}
}

func (a *AddonClient) Name() string {
	if a.addon.Manifest.Name != "" {
		return a.addon.Manifest.Name
	}
	return a.addon.Manifest.ID
}

func (a *AddonClient) Supports(fp domain.Fingerprint) bool {
	if !a.addon.Manifest.HasResource("stream") {
		return false
	}
	switch fp.Type {
	case domain.ContentMovie, domain.ContentSeries:
		return fp.IMDBID != ""
	default:
		return false
	}
}

// seedersInTitle matches the peer-count marker some addons embed in the
// human-readable stream title.
var seedersInTitle = regexp.MustCompile(`👤\s*(\d+)`)

func (a *AddonClient) Search(ctx context.Context, fp domain.Fingerprint) ([]domain.Stream, error) {
	url := a.addon.BaseURL() + "/stream/" + string(fp.Type) + "/" + fp.StremioID() + ".json"
	body, err := a.client.GetJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	var out []domain.Stream
	gjson.GetBytes(body, "streams").ForEach(func(_, item gjson.Result) bool {
		s := domain.Stream{
			InfoHash: item.Get("infoHash").String(),
			Title:    item.Get("title").String(),
		}
		if s.Title == "" {
			s.Title = item.Get("name").String()
		}
		if s.Title == "" {
			s.Title = item.Get("behaviorHints.filename").String()
		}
		if s.InfoHash == "" {
			// Some addons hand out direct locators instead of swarms.
			s.URL = item.Get("url").String()
		}
		if m := seedersInTitle.FindStringSubmatch(s.Title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				s.Seeders = n
			}
		}
		if normalizeStream(&s, a.Name()) {
			out = append(out, s)
		}
		return true
	})
	return out, nil
}
