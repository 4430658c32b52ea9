package domain

import (
	"strings"
	"time"
)

// TrackedItem est un anime suivi pour les alertes d'épisodes.
type TrackedItem struct {
	ID     string `json:"id" toml:"id" validate:"required,max=256"`
	Title  string `json:"title" validate:"max=512"`
	Poster string `json:"poster,omitempty" validate:"omitempty,url"`

	AddedAt time.Time `json:"addedAt,omitzero"`
}

// DisplayTitle retombe sur l'id quand le titre est vide.
func (t TrackedItem) DisplayTitle() string {
	if s := strings.TrimSpace(t.Title); s != "" {
		return s
	}
	return t.ID
}

// ItemInfo est la métadonnée renvoyée par l'API de contenu.
type ItemInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Poster string `json:"poster,omitempty"`
}

// IndexOf renvoie la position de id dans items, ou -1.
func IndexOf(items []TrackedItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// DedupeTrackedItems conserve l'ordre d'insertion et la première occurrence de chaque id.
func DedupeTrackedItems(items []TrackedItem) []TrackedItem {
	out := make([]TrackedItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}
