package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

type Notifier interface {
	// Available indique si le canal de présentation existe (équivalent de "Notification in window").
	Available() bool
	Send(ctx context.Context, n domain.Notification) error
}
