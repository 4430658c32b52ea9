package buildinfo

import "fmt"

// Ces variables sont injectées à la compilation via -ldflags.
// Exemple :
//
//	-X github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo.Version=v0.1.0
//	-X github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo.Date=2026-10-19
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

func (i Info) String() string {
	s := i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "" {
		s += fmt.Sprintf(" built %s", i.Date)
	}
	return s
}

// UserAgent est envoyé sur les requêtes sortantes.
func UserAgent() string {
	return "episode-watch/" + Version
}
