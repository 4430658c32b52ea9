package notify

import (
	"context"
	"errors"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

// Multi envoie à chaque notifier disponible; un échec n'empêche pas les autres.
type Multi struct {
	notifiers []ports.Notifier
}

// NewMulti ignore les entrées nil (ex: NewNtfy sans endpoint).
func NewMulti(notifiers ...ports.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n == nil || isNilNtfy(n) {
			continue
		}
		m.notifiers = append(m.notifiers, n)
	}
	return m
}

func isNilNtfy(n ports.Notifier) bool {
	nt, ok := n.(*Ntfy)
	return ok && nt == nil
}

func (m *Multi) Available() bool {
	for _, n := range m.notifiers {
		if n.Available() {
			return true
		}
	}
	return false
}

func (m *Multi) Send(ctx context.Context, notif domain.Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if !n.Available() {
			continue
		}
		if err := n.Send(ctx, notif); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
