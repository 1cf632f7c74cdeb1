package domain

import (
	"errors"
	"strings"
	"time"
)

// Catalog is one browsable listing an addon manifest declares.
type Catalog struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id" bson:"id"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// Manifest is the subset of a stremio addon manifest the gateway uses.
// Resources may be declared as plain strings or objects upstream; by the
// time a manifest reaches the domain they are flattened to resource names.
type Manifest struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Version     string    `json:"version,omitempty" bson:"version,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Resources   []string  `json:"resources" bson:"resources"`
	Types       []string  `json:"types" bson:"types"`
	Catalogs    []Catalog `json:"catalogs" bson:"catalogs"`
}

// HasResource reports whether the addon declares the given resource.
func (m Manifest) HasResource(name string) bool {
	for _, r := range m.Resources {
		if r == name {
			return true
		}
	}
	return false
}

// Addon is an installed addon bound to one user.
type Addon struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"-" bson:"userId"`
	URL       string    `json:"url" bson:"url"`
	Manifest  Manifest  `json:"manifest" bson:"manifest"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// BaseURL strips the trailing manifest.json from the install URL.
func (a Addon) BaseURL() string {
	return strings.TrimSuffix(strings.TrimSuffix(a.URL, "/manifest.json"), "/")
}

// Validate checks invariants for a stored addon.
func (a Addon) Validate() error {
	if a.UserID == "" {
		return errors.New("addon user id is required")
	}
	if a.URL == "" {
		return errors.New("addon url is required")
	}
	if a.Manifest.ID == "" {
		return errors.New("addon manifest id is required")
	}
	return nil
}
