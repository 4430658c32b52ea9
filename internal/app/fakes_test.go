package app

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	failPut bool
	// onGet est appelé avant chaque lecture, hors verrou.
	onGet func(key string)
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	if m.onGet != nil {
		m.onGet(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ports.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return ports.ErrNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *memKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memKV) setFailPut(v bool) {
	m.mu.Lock()
	m.failPut = v
	m.mu.Unlock()
}

// fakeSource sert des épisodes et des horaires configurables par item.
type fakeSource struct {
	mu        sync.Mutex
	episodes  map[string][]domain.Episode
	schedules map[string]*time.Time
	infos     map[string]domain.ItemInfo
	failEps   map[string]error
	epCalls   map[string]int
	block     chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		episodes:  map[string][]domain.Episode{},
		schedules: map[string]*time.Time{},
		infos:     map[string]domain.ItemInfo{},
		failEps:   map[string]error{},
		epCalls:   map[string]int{},
	}
}

func episodesUpTo(id string, n int) []domain.Episode {
	out := make([]domain.Episode, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Episode{ID: id + "?ep=" + strconv.Itoa(i), EpisodeNo: i})
	}
	return out
}

func (s *fakeSource) setEpisodes(id string, n int) {
	s.mu.Lock()
	s.episodes[id] = episodesUpTo(id, n)
	s.mu.Unlock()
}

func (s *fakeSource) setSchedule(id string, at *time.Time) {
	s.mu.Lock()
	s.schedules[id] = at
	s.mu.Unlock()
}

func (s *fakeSource) setEpisodesError(id string, err error) {
	s.mu.Lock()
	s.failEps[id] = err
	s.mu.Unlock()
}

func (s *fakeSource) episodeCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epCalls[id]
}

func (s *fakeSource) FetchEpisodes(ctx context.Context, itemID string) (domain.EpisodeList, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.EpisodeList{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.epCalls[itemID]++
	if err := s.failEps[itemID]; err != nil {
		return domain.EpisodeList{}, err
	}
	return domain.EpisodeList{Episodes: append([]domain.Episode(nil), s.episodes[itemID]...)}, nil
}

func (s *fakeSource) FetchSchedule(ctx context.Context, itemID string) (domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Schedule{NextEpisodeAt: s.schedules[itemID]}, nil
}

func (s *fakeSource) FetchInfo(ctx context.Context, itemID string) (domain.ItemInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[itemID]
	if !ok {
		return domain.ItemInfo{}, ports.ErrNotFound
	}
	return info, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	available bool
	sent      []domain.Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{available: true}
}

func (n *fakeNotifier) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available
}

func (n *fakeNotifier) Send(ctx context.Context, notif domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notif)
	return nil
}

func (n *fakeNotifier) Sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

func (n *fakeNotifier) count(kind domain.NotificationKind) int {
	c := 0
	for _, s := range n.Sent() {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

// recordingBus garde tous les événements publiés.
type recordingBus struct {
	mu     sync.Mutex
	events []ports.Event
}

func (b *recordingBus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ports.Event{Topic: topic, Payload: append([]byte(nil), payload...)})
}

func (b *recordingBus) Subscribe() (<-chan ports.Event, func()) {
	ch := make(chan ports.Event)
	return ch, func() {}
}

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Topic)
	}
	return out
}

func (b *recordingBus) count(topic string) int {
	n := 0
	for _, t := range b.topics() {
		if t == topic {
			n++
		}
	}
	return n
}
