package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"streamgate/internal/domain"
)

// fallbackManifests are served when a manifest fetch fails, keyed by a
// substring of the install URL. Challenge-protected addon hosts often
// refuse plain fetches even though the addon itself works fine.
var fallbackManifests = map[string]domain.Manifest{
	"torrentio.strem.fun": {
		ID:        "com.stremio.torrentio.addon",
		Name:      "Torrentio",
		Version:   "0.0.15",
		Resources: []string{"stream"},
		Types:     []string{"movie", "series"},
	},
}

type installRequest struct {
	ManifestURL string `json:"manifestUrl"`
}

func (s *Server) handleListAddons(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	addons, err := s.addons.ListByUser(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"addons": addons})
}

func (s *Server) handleInstallAddon(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	id, _ := identityFrom(r.Context())
	addon, err := s.installAddon(r.Context(), id.UserID, req.ManifestURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addon)
}

func (s *Server) handleInstallMultiple(w http.ResponseWriter, r *http.Request) {
	var urls []string
	if err := decodeJSON(r, &urls); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	id, _ := identityFrom(r.Context())

	type installResult struct {
		URL   string        `json:"url"`
		Addon *domain.Addon `json:"addon,omitempty"`
		Error string        `json:"error,omitempty"`
	}
	results := make([]installResult, 0, len(urls))
	for _, manifestURL := range urls {
		addon, err := s.installAddon(r.Context(), id.UserID, manifestURL)
		if err != nil {
			results = append(results, installResult{URL: manifestURL, Error: trimDomainMessage(err)})
			continue
		}
		results = append(results, installResult{URL: manifestURL, Addon: &addon})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) installAddon(ctx context.Context, userID, manifestURL string) (domain.Addon, error) {
	manifestURL = strings.TrimSpace(manifestURL)
	if u, err := url.Parse(manifestURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.Addon{}, errors.Join(domain.ErrInvalidInput, errors.New("manifestUrl must be an http(s) url"))
	}

	manifest, err := s.fetchManifest(ctx, manifestURL)
	if err != nil {
		fallback, ok := lookupFallbackManifest(manifestURL)
		if !ok {
			s.logger.Warn("manifest fetch failed with no fallback",
				slog.String("url", manifestURL),
				slog.String("error", err.Error()))
			return domain.Addon{}, errors.Join(domain.ErrInvalidInput,
				errors.New("manifest could not be fetched and no fallback manifest matches this url"))
		}
		s.logger.Info("using fallback manifest",
			slog.String("url", manifestURL),
			slog.String("manifestId", fallback.ID))
		manifest = fallback
	}
	if manifest.ID == "" || manifest.Name == "" {
		return domain.Addon{}, errors.Join(domain.ErrInvalidInput, errors.New("invalid manifest: id and name are required"))
	}

	addon := domain.Addon{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       manifestURL,
		Manifest:  manifest,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.addons.Insert(ctx, addon); err != nil {
		return domain.Addon{}, err
	}
	return addon, nil
}

func (s *Server) fetchManifest(ctx context.Context, manifestURL string) (domain.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	body, err := s.http.GetJSON(ctx, manifestURL)
	if err != nil {
		return domain.Manifest{}, err
	}
	return parseManifest(body), nil
}

// parseManifest flattens the upstream manifest. Resources may arrive as
// plain strings or as objects carrying a "name" field.
func parseManifest(body []byte) domain.Manifest {
	doc := gjson.ParseBytes(body)
	m := domain.Manifest{
		ID:          doc.Get("id").String(),
		Name:        doc.Get("name").String(),
		Version:     doc.Get("version").String(),
		Description: doc.Get("description").String(),
	}
	doc.Get("resources").ForEach(func(_, res gjson.Result) bool {
		name := res.String()
		if res.IsObject() {
			name = res.Get("name").String()
		}
		if name != "" {
			m.Resources = append(m.Resources, name)
		}
		return true
	})
	doc.Get("types").ForEach(func(_, t gjson.Result) bool {
		m.Types = append(m.Types, t.String())
		return true
	})
	doc.Get("catalogs").ForEach(func(_, c gjson.Result) bool {
		m.Catalogs = append(m.Catalogs, domain.Catalog{
			Type: c.Get("type").String(),
			ID:   c.Get("id").String(),
			Name: c.Get("name").String(),
		})
		return true
	})
	return m
}

func lookupFallbackManifest(manifestURL string) (domain.Manifest, bool) {
	for key, manifest := range fallbackManifests {
		if strings.Contains(manifestURL, key) {
			return manifest, true
		}
	}
	return domain.Manifest{}, false
}

func (s *Server) handleDeleteAddon(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.addons.Delete(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddonStream passes a single addon's stream response through
// untouched, for debugging which addon produced what.
func (s *Server) handleAddonStream(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	addon, err := s.addons.Get(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	contentType := r.PathValue("type")
	contentID := strings.TrimSuffix(r.PathValue("contentID"), ".json")
	target := addon.BaseURL() + "/stream/" + url.PathEscape(contentType) + "/" + url.PathEscape(contentID) + ".json"

	body, err := s.http.GetJSON(r.Context(), target)
	if err != nil {
		s.logger.Warn("addon stream passthrough failed",
			slog.String("addon", addon.Manifest.Name),
			slog.String("error", err.Error()))
		writeDomainError(w, errors.Join(domain.ErrUpstreamProtected, errors.New("addon request failed")))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
