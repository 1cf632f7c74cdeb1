package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"streamgate/internal/domain"
	"streamgate/internal/metadata"
)

// subtitlesAddonBase is the community subtitles addon every install can
// rely on without configuration.
const subtitlesAddonBase = "https://opensubtitles-v3.strem.io"

// searchProbeDeadline bounds the per-result stream probe during title
// search. Probes that miss the deadline count as "has streams" so slow
// sources never empty the result page.
const searchProbeDeadline = 5 * time.Second

const searchProbeLimit = 8

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	contentType := r.PathValue("type")
	contentID := strings.TrimSuffix(r.PathValue("contentID"), ".json")

	body, err := s.meta.Fetch(r.Context(), contentType, contentID)
	if err != nil {
		s.logger.Warn("meta fetch failed",
			slog.String("id", contentID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", "metadata service unavailable")
		return
	}
	meta := gjson.GetBytes(body, "meta")
	if !meta.Exists() {
		writeError(w, http.StatusNotFound, "not_found", "unknown content id")
		return
	}

	response := map[string]interface{}{
		"meta": json.RawMessage(meta.Raw),
	}
	if contentType == "series" {
		if episodes, err := s.meta.Episodes(r.Context(), contentID); err == nil {
			response["episodes"] = episodes
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	contentType := r.PathValue("contentType")

	skip, err := parseOptionalIntQuery(r.URL.Query().Get("skip"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid skip")
		return
	}
	limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	metas, err := s.meta.Catalog(r.Context(), contentType, section, skip)
	if err != nil {
		s.logger.Warn("catalog fetch failed",
			slog.String("section", section),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", "catalog unavailable")
		return
	}
	if limit > 0 && limit < len(metas) {
		metas = metas[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metas": metas})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	id, _ := identityFrom(r.Context())

	var (
		mu     sync.Mutex
		merged []metadata.Meta
	)
	g, ctx := errgroup.WithContext(r.Context())
	for _, metaType := range []string{"movie", "series"} {
		g.Go(func() error {
			metas, err := s.meta.Search(ctx, metaType, query)
			if err != nil {
				s.logger.Warn("search fan-out failed",
					slog.String("type", metaType),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			merged = append(merged, metas...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Movies and series were merged in arrival order; re-rank the union.
	sortMetasByMatch(merged, query)
	merged = s.filterWithStreams(r.Context(), merged, id.UserID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"metas": merged})
}

func sortMetasByMatch(metas []metadata.Meta, query string) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metadata.MatchClass(metas[i].Name, query) < metadata.MatchClass(metas[j].Name, query)
	})
}

// filterWithStreams drops results for which a quick aggregator probe
// finds no streams. Only the head of the list is probed; the tail is
// kept untouched rather than held behind dozens of probes.
func (s *Server) filterWithStreams(ctx context.Context, metas []metadata.Meta, userID string) []metadata.Meta {
	n := min(len(metas), searchProbeLimit)
	keep := make([]bool, len(metas))
	for i := n; i < len(metas); i++ {
		keep[i] = true
	}

	g, probeCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fp, err := domain.ParseFingerprint(metas[i].Type, metas[i].ID)
			if err != nil {
				return nil
			}
			fp.Title = metas[i].Name
			probeCtx, cancel := context.WithTimeout(probeCtx, searchProbeDeadline)
			defer cancel()
			streams, err := s.aggregator.Search(probeCtx, fp, userID)
			// An inconclusive probe keeps the result.
			keep[i] = err != nil || len(streams) > 0
			return nil
		})
	}
	_ = g.Wait()

	out := metas[:0]
	for i, m := range metas {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

// catalogSection is one home-page row.
type catalogSection struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Items []metadata.Meta `json:"items"`
}

// streamingServices recognized in catalog names for home-page bucketing.
var streamingServices = []string{
	"netflix", "hbo", "disney", "amazon", "apple", "hulu", "paramount", "peacock",
}

const (
	maxCatalogsPerAddon = 4
	maxItemsPerCatalog  = 20
)

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	addons, err := s.addons.ListByUser(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type fetchedCatalog struct {
		section string
		title   string
		items   []metadata.Meta
	}
	var (
		mu      sync.Mutex
		fetched []fetchedCatalog
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(8)
	for _, addon := range addons {
		if !addon.Manifest.HasResource("catalog") {
			continue
		}
		catalogs := addon.Manifest.Catalogs
		if len(catalogs) > maxCatalogsPerAddon {
			catalogs = catalogs[:maxCatalogsPerAddon]
		}
		for _, catalog := range catalogs {
			g.Go(func() error {
				target := addon.BaseURL() + "/catalog/" + url.PathEscape(catalog.Type) + "/" + url.PathEscape(catalog.ID) + ".json"
				body, err := s.http.GetJSON(ctx, target)
				if err != nil {
					s.logger.Warn("discover catalog failed",
						slog.String("addon", addon.Manifest.Name),
						slog.String("catalog", catalog.ID),
						slog.String("error", err.Error()))
					return nil
				}
				items := metadata.ParseMetas(body)
				if len(items) == 0 {
					return nil
				}
				if len(items) > maxItemsPerCatalog {
					items = items[:maxItemsPerCatalog]
				}
				section, title := classifyCatalog(addon.Manifest, catalog)
				mu.Lock()
				fetched = append(fetched, fetchedCatalog{section: section, title: title, items: items})
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	// Merge catalogs into their buckets, popular first, then the
	// per-service rows, USA TV last.
	merged := map[string]*catalogSection{}
	for _, fc := range fetched {
		sec, ok := merged[fc.section]
		if !ok {
			sec = &catalogSection{ID: fc.section, Title: fc.title}
			merged[fc.section] = sec
		}
		sec.Items = append(sec.Items, fc.items...)
	}
	sections := make([]catalogSection, 0, len(merged))
	for _, sec := range merged {
		sections = append(sections, *sec)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sectionRank(sections[i].ID) < sectionRank(sections[j].ID)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": sections})
}

func classifyCatalog(manifest domain.Manifest, catalog domain.Catalog) (section, title string) {
	haystack := strings.ToLower(catalog.ID + " " + catalog.Name + " " + manifest.Name)
	for _, service := range streamingServices {
		if strings.Contains(haystack, service) {
			return service, strings.ToUpper(service[:1]) + service[1:]
		}
	}
	if catalog.Type == "tv" || strings.Contains(haystack, "usa") {
		return "usa_tv", "USA TV"
	}
	return "popular", "Popular"
}

func sectionRank(id string) int {
	switch id {
	case "popular":
		return 0
	case "usa_tv":
		return 2
	default:
		return 1
	}
}

type subtitleEntry struct {
	ID   string `json:"id"`
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	contentType := r.PathValue("type")
	contentID := strings.TrimSuffix(r.PathValue("contentID"), ".json")
	target := subtitlesAddonBase + "/subtitles/" + url.PathEscape(contentType) + "/" + url.PathEscape(contentID) + ".json"

	body, err := s.http.GetJSON(r.Context(), target)
	if err != nil {
		s.logger.Warn("subtitles fetch failed",
			slog.String("id", contentID),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, map[string]interface{}{"subtitles": []subtitleEntry{}})
		return
	}

	var raw []subtitleEntry
	gjson.GetBytes(body, "subtitles").ForEach(func(_, sub gjson.Result) bool {
		raw = append(raw, subtitleEntry{
			ID:   sub.Get("id").String(),
			Lang: sub.Get("lang").String(),
			URL:  sub.Get("url").String(),
		})
		return true
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"subtitles": normalizeSubtitles(raw)})
}

// normalizeSubtitles keeps the first track per language and puts English
// at the head of the list.
func normalizeSubtitles(subs []subtitleEntry) []subtitleEntry {
	seen := make(map[string]struct{}, len(subs))
	out := make([]subtitleEntry, 0, len(subs))
	for _, sub := range subs {
		lang := strings.ToLower(strings.TrimSpace(sub.Lang))
		if lang == "" || sub.URL == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		sub.Lang = lang
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return isEnglish(out[i].Lang) && !isEnglish(out[j].Lang)
	})
	return out
}

func isEnglish(lang string) bool {
	switch lang {
	case "en", "eng", "english":
		return true
	}
	return false
}
