package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

// Log écrit chaque notification dans le journal. Toujours disponible.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Available() bool { return true }

func (l *Log) Send(ctx context.Context, n domain.Notification) error {
	l.logger.Info().
		Str("kind", string(n.Kind)).
		Str("item_id", n.ItemID).
		Int("episode", n.Episode).
		Str("tag", n.Tag).
		Str("title", n.Title).
		Msg(n.Body)
	return nil
}
