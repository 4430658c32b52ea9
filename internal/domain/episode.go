package domain

import (
	"regexp"
	"strconv"
	"time"
)

type Episode struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	EpisodeNo int    `json:"episode_no,omitempty"`
	Filler    bool   `json:"filler,omitempty"`
}

type EpisodeList struct {
	Episodes []Episode `json:"episodes"`
}

// Schedule décrit la prochaine diffusion connue. NextEpisodeAt est nil quand l'API n'en annonce pas.
type Schedule struct {
	NextEpisodeAt *time.Time `json:"nextEpisodeAt"`
}

var reEpisodeMarker = regexp.MustCompile(`ep=(\d+)`)

// EpisodeNumber extrait le numéro encodé dans un id d'épisode ("...?ep=12").
func EpisodeNumber(id string) (int, bool) {
	m := reEpisodeMarker.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// LatestEpisodeNumber est la seule règle d'extraction: le max des numéros lisibles, 0 sinon.
func LatestEpisodeNumber(episodes []Episode) int {
	latest := 0
	for _, ep := range episodes {
		n, ok := EpisodeNumber(ep.ID)
		if !ok {
			continue
		}
		if n > latest {
			latest = n
		}
	}
	return latest
}

// NextEpisodeNumber prédit le numéro du prochain épisode à partir de la même règle.
func NextEpisodeNumber(episodes []Episode) int {
	return LatestEpisodeNumber(episodes) + 1
}
