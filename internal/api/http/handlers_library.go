package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamgate/internal/domain"
)

type libraryResponse struct {
	Movies []domain.LibraryItem `json:"movies"`
	Series []domain.LibraryItem `json:"series"`
}

// handleListLibrary splits the library into the two player shelves.
// Non-movie types (series, channels) all land on the series shelf, the
// library itself stores every type.
func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	items, err := s.library.ListByUser(r.Context(), id.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response := libraryResponse{
		Movies: make([]domain.LibraryItem, 0),
		Series: make([]domain.LibraryItem, 0),
	}
	for _, item := range items {
		if item.Type == "movie" {
			response.Movies = append(response.Movies, item)
		} else {
			response.Series = append(response.Series, item)
		}
	}
	writeJSON(w, http.StatusOK, response)
}

type addLibraryRequest struct {
	IMDBID string `json:"imdbId"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Poster string `json:"poster"`
	Year   string `json:"year"`
}

func (s *Server) handleAddLibrary(w http.ResponseWriter, r *http.Request) {
	var req addLibraryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	id, _ := identityFrom(r.Context())

	item := domain.LibraryItem{
		ID:      uuid.NewString(),
		UserID:  id.UserID,
		IMDBID:  strings.TrimSpace(req.IMDBID),
		Type:    strings.TrimSpace(req.Type),
		Name:    strings.TrimSpace(req.Name),
		Poster:  req.Poster,
		Year:    req.Year,
		AddedAt: time.Now().UTC(),
	}
	if err := s.library.Add(r.Context(), item); err != nil {
		// Saving a title twice is a no-op, not a conflict.
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "exists"})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.library.Delete(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
