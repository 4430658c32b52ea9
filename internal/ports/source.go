package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

// EpisodeSource est la frontière I/O vers l'API de contenu. Aucun retry ici.
type EpisodeSource interface {
	FetchEpisodes(ctx context.Context, itemID string) (domain.EpisodeList, error)
	FetchSchedule(ctx context.Context, itemID string) (domain.Schedule, error)
	FetchInfo(ctx context.Context, itemID string) (domain.ItemInfo, error)
}
