package apihttp

import (
	"log/slog"
	"net/http"
	"strings"

	"streamgate/internal/domain"
)

// handleStreams returns the aggregated, deduplicated, ranked stream list
// for one piece of content. The id decides the route: URLs go to the
// direct resolver, ustv ids to the TV connector, everything else fans
// out across the caller's addons and the built-in connectors.
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	contentID := strings.TrimSuffix(r.PathValue("contentID"), ".json")
	fp, err := domain.ParseFingerprint(r.PathValue("type"), contentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, _ := identityFrom(r.Context())

	// Best-effort title hint for the free-text connectors.
	s.meta.Resolve(r.Context(), &fp)

	streams, err := s.aggregator.Search(r.Context(), fp, id.UserID)
	if err != nil {
		s.logger.Error("stream aggregation failed",
			slog.String("contentId", contentID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "stream search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"streams": streams})
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.NormalizeInfoHash(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed info hash")
		return
	}
	if err := s.sessions.Ensure(r.Context(), hash); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "started",
		"infoHash": hash,
	})
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Status(r.Context(), r.PathValue("hash"))
	switch state.Status {
	case domain.SessionInvalid:
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed info hash")
	case domain.SessionNotFound:
		writeJSON(w, http.StatusNotFound, state)
	default:
		writeJSON(w, http.StatusOK, state)
	}
}

func (s *Server) handleStreamVideo(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.NormalizeInfoHash(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed info hash")
		return
	}
	path, err := s.sessions.VideoPath(hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.video.ServeVideo(w, r, path, func() {
		s.sessions.Touch(hash)
	})
}
