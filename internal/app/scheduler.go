package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultAdvanceWindow = 5 * time.Minute

type scheduledAlert struct {
	timer  clockwork.Timer
	fireAt time.Time
}

// Scheduler gère au plus un timer one-shot par item.
// Les callbacks tournent dans la goroutine du timer, jamais sous le verrou.
type Scheduler struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*scheduledAlert
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, timers: make(map[string]*scheduledAlert)}
}

// FireTimeFor calcule l'instant d'alerte: advance avant la diffusion, seulement s'il est encore à venir.
func FireTimeFor(nextEpisodeAt time.Time, advance time.Duration, now time.Time) (time.Time, bool) {
	fireAt := nextEpisodeAt.Add(-advance)
	if !fireAt.After(now) {
		return time.Time{}, false
	}
	return fireAt, true
}

// Schedule remplace toujours le timer existant de l'item, puis arme le nouveau si fireAt est dans le futur.
func (s *Scheduler) Schedule(itemID string, fireAt time.Time, callback func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(itemID)

	delay := fireAt.Sub(s.clock.Now())
	if delay <= 0 {
		return false
	}

	alert := &scheduledAlert{fireAt: fireAt}
	alert.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		// Un timer remplacé entre-temps ne doit pas retirer son successeur.
		live := s.timers[itemID] == alert
		if live {
			delete(s.timers, itemID)
		}
		s.mu.Unlock()
		if live && callback != nil {
			callback()
		}
	})
	s.timers[itemID] = alert
	return true
}

func (s *Scheduler) Cancel(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(itemID)
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.cancelLocked(id)
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) FireAt(itemID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.timers[itemID]
	if !ok {
		return time.Time{}, false
	}
	return a.fireAt, true
}

func (s *Scheduler) cancelLocked(itemID string) {
	a, ok := s.timers[itemID]
	if !ok {
		return
	}
	a.timer.Stop()
	delete(s.timers, itemID)
}
