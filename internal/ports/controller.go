package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

// DetectionController pilote un moteur de détection, local ou dans un autre contexte d'exécution.
type DetectionController interface {
	Start(ctx context.Context, items []domain.TrackedItem) error
	Stop(ctx context.Context) error
	UpdateTrackedItems(ctx context.Context, items []domain.TrackedItem) error
	ForceCheck(ctx context.Context) error
	Status(ctx context.Context) (domain.ServiceState, error)
	// Background vaut true quand le moteur tourne dans un contexte séparé (daemon).
	Background() bool
}
