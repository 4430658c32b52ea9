package memorybus

import (
	"strings"
	"sync"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const defaultBuffer = 64

type subscriber struct {
	ch       chan ports.Event
	prefixes []string
}

func (s subscriber) wants(topic string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

// Bus diffuse les événements du moteur aux abonnés du même processus (SSE, handlers).
type Bus struct {
	mu      sync.Mutex
	subs    map[chan ports.Event]subscriber
	alive   bool
	dropped int
}

func New() *Bus {
	return &Bus{subs: make(map[chan ports.Event]subscriber), alive: true}
}

func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	evt := ports.Event{Topic: topic, Payload: payload}
	for ch, sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case ch <- evt:
		default:
			// drop si le client est trop lent
			b.dropped++
		}
	}
}

func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	return b.SubscribeTopics()
}

// SubscribeTopics ne reçoit que les topics commençant par l'un des préfixes (tous si aucun).
func (b *Bus) SubscribeTopics(prefixes ...string) (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, defaultBuffer)
	b.mu.Lock()
	if !b.alive {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = subscriber{ch: ch, prefixes: prefixes}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// Close ferme tous les abonnements; les Publish suivants sont ignorés.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.alive = false
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Dropped compte les événements perdus faute de place chez un abonné.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
