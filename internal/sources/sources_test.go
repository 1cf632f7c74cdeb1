package sources

import (
	"context"
	"errors"
	"testing"

	"streamgate/internal/domain"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	hashC = "cccccccccccccccccccccccccccccccccccccccc"
)

// fakeGetter serves canned bodies keyed by requested URL and records the
// order of requests.
type fakeGetter struct {
	responses map[string]string
	errs      map[string]error
	requested []string
}

func (f *fakeGetter) GetJSON(_ context.Context, url string) ([]byte, error) {
	f.requested = append(f.requested, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, errors.New("unexpected url: " + url)
	}
	return []byte(body), nil
}

func TestFirstWords(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"The Lord of the Rings Extended", 3, "The Lord of"},
		{"Dune", 5, "Dune"},
		{"  spaced   out  title ", 2, "spaced out"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		if got := firstWords(tc.in, tc.n); got != tc.want {
			t.Errorf("firstWords(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestAddonClientSearch(t *testing.T) {
	addon := domain.Addon{
		UserID: "u1",
		URL:    "https://addon.example/manifest.json",
		Manifest: domain.Manifest{
			ID:        "org.example.addon",
			Name:      "Example",
			Resources: []string{"stream"},
		},
	}
	getter := &fakeGetter{responses: map[string]string{
		"https://addon.example/stream/movie/tt0133093.json": `{"streams":[
			{"infoHash":"` + hashA + `","title":"Movie 1080p\n👤 42 💾 2.1 GB"},
			{"infoHash":"BADHASH","title":"broken"},
			{"name":"Named 720p","infoHash":"` + hashB + `"},
			{"url":"https://cdn.example/direct.mp4","title":"Direct 4k"}
		]}`,
	}}

	fp, _ := domain.ParseFingerprint("movie", "tt0133093")
	c := NewAddonClient(addon, getter)
	if !c.Supports(fp) {
		t.Fatal("addon with stream resource should support movie lookups")
	}
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("got %d streams, want 3 (invalid hash dropped)", len(streams))
	}
	if streams[0].Seeders != 42 {
		t.Errorf("seeders from title marker = %d, want 42", streams[0].Seeders)
	}
	if streams[0].Quality != domain.Quality1080p {
		t.Errorf("quality = %v, want 1080p", streams[0].Quality)
	}
	if streams[1].InfoHash != hashB || streams[1].Title != "Named 720p" {
		t.Errorf("name fallback not applied: %+v", streams[1])
	}
	if streams[2].URL == "" || streams[2].InfoHash != "" {
		t.Errorf("direct stream should carry url only: %+v", streams[2])
	}
	for _, s := range streams {
		if s.Source != "Example" {
			t.Errorf("source = %q, want Example", s.Source)
		}
	}
}

func TestAddonClientSupports(t *testing.T) {
	noStream := domain.Addon{Manifest: domain.Manifest{ID: "x", Resources: []string{"catalog"}}}
	fp, _ := domain.ParseFingerprint("movie", "tt1")
	fp.IMDBID = "tt1"
	if NewAddonClient(noStream, nil).Supports(fp) {
		t.Error("catalog-only addon must not be queried for streams")
	}
	tvFP, _ := domain.ParseFingerprint("tv", "ustv-x")
	withStream := domain.Addon{Manifest: domain.Manifest{ID: "x", Resources: []string{"stream"}}}
	if NewAddonClient(withStream, nil).Supports(tvFP) {
		t.Error("addons are not queried for live tv ids")
	}
}

func TestMovieIndexSearch(t *testing.T) {
	getter := &fakeGetter{responses: map[string]string{
		"https://movies.example/api/v2/list_movies.json?limit=20&query_term=The+Matrix": `{"data":{"movies":[
			{"imdb_code":"tt0133093","title_long":"The Matrix (1999)","year":1999,"torrents":[
				{"quality":"1080p","type":"bluray","hash":"` + hashA + `","seeds":120,"size_bytes":2147483648},
				{"quality":"720p","type":"web","hash":"` + hashB + `","seeds":80,"size_bytes":1073741824}
			]},
			{"imdb_code":"tt9999999","title_long":"The Matrix Parody (2005)","year":2005,"torrents":[
				{"quality":"1080p","hash":"` + hashC + `","seeds":10}
			]}
		]}}`,
	}}

	fp, _ := domain.ParseFingerprint("movie", "tt0133093")
	fp.Title = "The Matrix"
	fp.Year = 1999

	c := NewMovieIndexClient("https://movies.example", getter)
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2 (other imdb ids filtered)", len(streams))
	}
	if streams[0].Quality != domain.Quality1080p || streams[0].InfoHash != hashA {
		t.Errorf("first stream = %+v", streams[0])
	}
	if streams[1].Label != "720p" || streams[1].Seeders != 80 {
		t.Errorf("second stream = %+v", streams[1])
	}
}

func TestMovieIndexQueryShape(t *testing.T) {
	getter := &fakeGetter{responses: map[string]string{}, errs: map[string]error{}}
	fp := domain.Fingerprint{Type: domain.ContentMovie, Title: "One Two Three Four Five"}

	c := NewMovieIndexClient("https://movies.example", getter)
	_, _ = c.Search(context.Background(), fp)
	if len(getter.requested) != 1 {
		t.Fatalf("got %d requests, want 1", len(getter.requested))
	}
	want := "https://movies.example/api/v2/list_movies.json?limit=20&query_term=One+Two+Three"
	if getter.requested[0] != want {
		t.Fatalf("query = %q, want %q", getter.requested[0], want)
	}
}

func TestSeriesIndexSearch(t *testing.T) {
	getter := &fakeGetter{responses: map[string]string{
		"https://series.example/api/get-torrents?imdb_id=0944947&limit=50": `{"torrents":[
			{"title":"Show S03E09 1080p","hash":"` + hashA + `","seeds":300,"season":"3","episode":"9","size_bytes":"1500000000"},
			{"title":"Show S03E08 1080p","hash":"` + hashB + `","seeds":250,"season":"3","episode":"8"},
			{"title":"Show S03E09 720p","hash":"` + hashC + `","seeds":90,"season":"3","episode":"9"}
		]}`,
	}}

	fp, err := domain.ParseFingerprint("series", "tt0944947:3:9")
	if err != nil {
		t.Fatal(err)
	}
	c := NewSeriesIndexClient("https://series.example", getter)
	if !c.Supports(fp) {
		t.Fatal("series fingerprint should be supported")
	}
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2 (wrong episode filtered)", len(streams))
	}
	for _, s := range streams {
		if s.InfoHash == hashB {
			t.Error("episode 8 should have been filtered out")
		}
	}
}

func TestFreeTextRetryLadder(t *testing.T) {
	base := "https://freetext.example"
	empty := `[{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000"}]`
	getter := &fakeGetter{responses: map[string]string{
		base + "/q.php?q=One+Two+Three+Four+Five+1999": empty,
		base + "/q.php?q=One+Two+Three+Four":           empty,
		base + "/q.php?q=One+Two+Three": `[
			{"id":"7","name":"One Two Three 1080p","info_hash":"` + hashA + `","seeders":"55","size":"700000000"},
			{"id":"8","name":"One Two Three CAM","info_hash":"` + hashB + `","seeders":"0"}
		]`,
	}}

	fp := domain.Fingerprint{Type: domain.ContentMovie, Title: "One Two Three Four Five Six", Year: 1999}
	c := NewFreeTextClient(base, getter)
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(getter.requested) != 3 {
		t.Fatalf("expected all 3 retry tiers, got %v", getter.requested)
	}
	if len(streams) != 1 {
		t.Fatalf("got %d streams, want 1 (zero-seeder row dropped)", len(streams))
	}
	if streams[0].InfoHash != hashA || streams[0].Seeders != 55 {
		t.Fatalf("stream = %+v", streams[0])
	}
}

func TestFreeTextSeriesQueryIncludesEpisodeTag(t *testing.T) {
	base := "https://freetext.example"
	getter := &fakeGetter{responses: map[string]string{
		base + "/q.php?q=Show+Name+S02E05": `[
			{"id":"9","name":"Show Name S02E05 720p","info_hash":"` + hashA + `","seeders":"12"}
		]`,
	}}

	fp, _ := domain.ParseFingerprint("series", "tt0000001:2:5")
	fp.Title = "Show Name"
	c := NewFreeTextClient(base, getter)
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(streams))
	}
	if getter.requested[0] != base+"/q.php?q=Show+Name+S02E05" {
		t.Fatalf("first query = %q", getter.requested[0])
	}
}

func TestDirectResolver(t *testing.T) {
	fp, _ := domain.ParseFingerprint("movie", "https://cdn.example/v.mp4")
	d := NewDirectResolver()
	if !d.Supports(fp) {
		t.Fatal("direct fingerprint should be supported")
	}
	streams, err := d.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 1 || streams[0].URL != "https://cdn.example/v.mp4" {
		t.Fatalf("streams = %+v", streams)
	}
}

func TestTVClient(t *testing.T) {
	getter := &fakeGetter{responses: map[string]string{
		"https://tv.example/channels/ustv-news.json": `{"name":"News 24","url":"https://live.example/news.m3u8"}`,
	}}
	fp, _ := domain.ParseFingerprint("tv", "ustv-news")

	c := NewTVClient("https://tv.example", getter)
	streams, err := c.Search(context.Background(), fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 1 || streams[0].URL != "https://live.example/news.m3u8" || streams[0].Title != "News 24" {
		t.Fatalf("streams = %+v", streams)
	}

	unconfigured := NewTVClient("", getter)
	if unconfigured.Supports(fp) {
		t.Error("tv client without a base url must not be queried")
	}
}
