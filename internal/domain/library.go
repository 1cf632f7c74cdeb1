package domain

import (
	"errors"
	"time"
)

// LibraryItem is one saved catalog entry in a user's library.
type LibraryItem struct {
	ID      string    `json:"id" bson:"_id"`
	UserID  string    `json:"-" bson:"userId"`
	IMDBID  string    `json:"imdbId" bson:"imdbId"`
	Type    string    `json:"type" bson:"type"`
	Name    string    `json:"name" bson:"name"`
	Poster  string    `json:"poster,omitempty" bson:"poster,omitempty"`
	Year    string    `json:"year,omitempty" bson:"year,omitempty"`
	AddedAt time.Time `json:"addedAt" bson:"addedAt"`
}

// Validate checks invariants for a stored library item.
func (it LibraryItem) Validate() error {
	if it.UserID == "" {
		return errors.New("library item user id is required")
	}
	if it.IMDBID == "" {
		return errors.New("library item imdb id is required")
	}
	if it.Type == "" {
		return errors.New("library item type is required")
	}
	return nil
}
