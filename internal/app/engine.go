package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

type EngineOptions struct {
	CheckInterval  time.Duration
	AdvanceWindow  time.Duration
	EpisodesMaxAge time.Duration
	ScheduleMaxAge time.Duration
	// CacheRetention borne l'âge des réponses gardées en repli. 0 désactive le nettoyage.
	CacheRetention time.Duration

	Clock clockwork.Clock
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		CheckInterval:  5 * time.Minute,
		AdvanceWindow:  DefaultAdvanceWindow,
		EpisodesMaxAge: 5 * time.Minute,
		ScheduleMaxAge: 60 * time.Minute,
		CacheRetention: 7 * 24 * time.Hour,
	}
}

// Engine détecte les nouveaux épisodes des items suivis et programme les alertes "bientôt disponible".
//
// Cycle de vie: Stopped → Running → Stopped. Chaque Start ouvre une nouvelle génération;
// le travail asynchrone d'une génération précédente est ignoré.
type Engine struct {
	logger        zerolog.Logger
	source        ports.EpisodeSource
	cache         *ResponseCache
	baselines     *BaselineStore
	scheduler     *Scheduler
	notifications *NotificationService
	tracked       *TrackedStore
	bus           ports.EventBus
	clock         clockwork.Clock
	opts          EngineOptions

	// life n'est annulé que par Shutdown: Stop laisse finir les requêtes en cours.
	life context.Context
	kill context.CancelFunc
	wg   sync.WaitGroup

	mu          sync.Mutex
	running     bool
	closed      bool
	generation  uint64
	stopLoop    chan struct{}
	items       []domain.TrackedItem
	lastSweepAt *time.Time
	sweepGen    uint64 // génération du sweep en cours, 0 si aucun

	activeLoops atomic.Int32
}

type EngineDeps struct {
	Source        ports.EpisodeSource
	Cache         *ResponseCache
	Baselines     *BaselineStore
	Scheduler     *Scheduler
	Notifications *NotificationService
	Tracked       *TrackedStore
	Bus           ports.EventBus
}

func NewEngine(logger zerolog.Logger, deps EngineDeps, opts EngineOptions) *Engine {
	def := DefaultEngineOptions()
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = def.CheckInterval
	}
	if opts.AdvanceWindow <= 0 {
		opts.AdvanceWindow = def.AdvanceWindow
	}
	if opts.EpisodesMaxAge <= 0 {
		opts.EpisodesMaxAge = def.EpisodesMaxAge
	}
	if opts.ScheduleMaxAge <= 0 {
		opts.ScheduleMaxAge = def.ScheduleMaxAge
	}
	if opts.CacheRetention < 0 {
		opts.CacheRetention = 0
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	e := &Engine{
		logger:        logger,
		source:        deps.Source,
		cache:         deps.Cache,
		baselines:     deps.Baselines,
		scheduler:     deps.Scheduler,
		notifications: deps.Notifications,
		tracked:       deps.Tracked,
		bus:           deps.Bus,
		clock:         opts.Clock,
		opts:          opts,
	}
	if e.cache == nil {
		e.cache = NewResponseCache(logger, opts.Clock, nil)
	}
	if e.baselines == nil {
		e.baselines = NewBaselineStore(logger, nil)
	}
	if e.scheduler == nil {
		e.scheduler = NewScheduler(opts.Clock)
	}
	e.life, e.kill = context.WithCancel(context.Background())
	return e
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start est sans effet si le moteur tourne déjà. Le premier sweep est lancé en arrière-plan.
func (e *Engine) Start(ctx context.Context, items []domain.TrackedItem) {
	items = domain.DedupeTrackedItems(items)

	if !e.startable() {
		e.logger.Debug().Msg("detection already running")
		return
	}
	// Chargées avant le passage à Running: aucun check de cette génération ne les précède.
	e.baselines.Load(ctx)

	e.mu.Lock()
	if e.running || e.closed {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.generation++
	gen := e.generation
	stop := make(chan struct{})
	e.stopLoop = stop
	e.items = items
	e.wg.Add(1)
	e.mu.Unlock()

	if err := e.tracked.Save(ctx, items); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist tracked items")
	}

	e.logger.Info().Int("tracked", len(items)).Dur("interval", e.opts.CheckInterval).Msg("episode detection started")
	e.publish(TopicDetectionStarted, DetectionStartedEvent{TrackedCount: len(items)})

	go e.run(gen, stop)
}

func (e *Engine) startable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.running && !e.closed
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.generation++
	stop := e.stopLoop
	e.stopLoop = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	e.scheduler.CancelAll()

	e.logger.Info().Msg("episode detection stopped")
	e.publish(TopicDetectionStopped, struct{}{})
}

// Shutdown arrête le moteur, interrompt les requêtes en cours et attend la fin des tâches de fond.
// Le moteur ne peut plus être relancé ensuite.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.kill()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track compte une tâche que Shutdown doit attendre; false si le moteur est fermé.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// bind lie ctx à la durée de vie du moteur.
func (e *Engine) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(e.life, cancel)
	return ctx, func() {
		release()
		cancel()
	}
}

func (e *Engine) run(gen uint64, stop <-chan struct{}) {
	defer e.wg.Done()
	ctx := e.life
	ticker := e.clock.NewTicker(e.opts.CheckInterval)
	defer ticker.Stop()
	e.activeLoops.Add(1)
	defer e.activeLoops.Add(-1)

	e.sweep(ctx, gen)
	e.refreshSchedules(ctx, gen)

	for {
		select {
		case <-stop:
			e.logger.Debug().Msg("detection loop stopped")
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.sweep(ctx, gen)
		}
	}
}

// current renvoie la génération active et son contexte, ou ok=false si le moteur est arrêté.
func (e *Engine) current() (gen uint64, ctx context.Context, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0, nil, false
	}
	return e.generation, e.life, true
}

func (e *Engine) isLive(gen uint64, itemID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && e.generation == gen && domain.IndexOf(e.items, itemID) >= 0
}

// Sweep vérifie tous les items suivis. Sans effet si le moteur est arrêté.
func (e *Engine) Sweep(ctx context.Context) {
	gen, _, ok := e.current()
	if !ok || !e.track() {
		return
	}
	defer e.wg.Done()
	ctx, cancel := e.bind(ctx)
	defer cancel()
	e.sweep(ctx, gen)
}

func (e *Engine) sweep(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if e.sweepGen == gen {
		e.mu.Unlock()
		e.logger.Debug().Msg("sweep already in progress, skipping")
		return
	}
	e.sweepGen = gen
	items := append([]domain.TrackedItem(nil), e.items...)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.sweepGen == gen {
			e.sweepGen = 0
		}
		e.mu.Unlock()
	}()

	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			e.checkOne(ctx, gen, item)
			return nil
		})
	}
	_ = g.Wait()

	if err := e.baselines.Save(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("baselines not persisted after sweep")
	}

	now := e.clock.Now()
	e.mu.Lock()
	stale := !e.running || e.generation != gen
	if !stale {
		e.lastSweepAt = &now
	}
	e.mu.Unlock()
	if stale {
		return
	}

	e.cache.Prune(ctx, e.opts.CacheRetention)
	e.logger.Debug().Int("count", len(items)).Msg("sweep completed")
	e.publish(TopicSweepCompleted, SweepCompletedEvent{Timestamp: now, Count: len(items)})
}

// CheckOne vérifie un seul item puis persiste les baselines. Sans effet si le moteur est arrêté.
func (e *Engine) CheckOne(ctx context.Context, item domain.TrackedItem) {
	gen, _, ok := e.current()
	if !ok || !e.track() {
		return
	}
	defer e.wg.Done()
	ctx, cancel := e.bind(ctx)
	defer cancel()
	e.checkOne(ctx, gen, item)
	if err := e.baselines.Save(ctx); err != nil {
		e.logger.Warn().Err(err).Str("item_id", item.ID).Msg("baselines not persisted after check")
	}
}

func (e *Engine) checkOne(ctx context.Context, gen uint64, item domain.TrackedItem) {
	log := e.logger.With().Str("item_id", item.ID).Logger()

	list, err := e.episodes(ctx, item.ID)
	if err != nil {
		log.Warn().Err(err).Msg("episode check failed")
		return
	}
	if !e.isLive(gen, item.ID) {
		return
	}

	latest := domain.LatestEpisodeNumber(list.Episodes)
	prev, existed, advanced := e.baselines.Advance(item.ID, latest)
	switch {
	case !existed:
		log.Debug().Int("episode", latest).Msg("episode baseline established")
	case advanced:
		log.Info().Int("episode", latest).Int("previous", prev).Msg("new episode detected")
		e.notify(ctx, domain.NewEpisodeNotification(item, latest))
		e.publish(TopicNewEpisode, NewEpisodeEvent{Item: item, EpisodeNumber: latest})
	}

	e.refreshSchedule(ctx, gen, item)
}

func (e *Engine) refreshSchedules(ctx context.Context, gen uint64) {
	for _, item := range e.TrackedItems() {
		if ctx.Err() != nil {
			return
		}
		e.refreshSchedule(ctx, gen, item)
	}
}

func (e *Engine) refreshSchedule(ctx context.Context, gen uint64, item domain.TrackedItem) {
	log := e.logger.With().Str("item_id", item.ID).Logger()

	// Sans horaire exploitable, l'alerte précédente n'a plus de raison d'être.
	sch, err := e.schedule(ctx, item.ID)
	if !e.isLive(gen, item.ID) {
		return
	}
	if err != nil {
		log.Debug().Err(err).Msg("schedule unavailable")
		e.scheduler.Cancel(item.ID)
		return
	}
	if sch.NextEpisodeAt == nil {
		e.scheduler.Cancel(item.ID)
		return
	}
	fireAt, ok := FireTimeFor(*sch.NextEpisodeAt, e.opts.AdvanceWindow, e.clock.Now())
	if !ok {
		e.scheduler.Cancel(item.ID)
		return
	}
	if e.scheduler.Schedule(item.ID, fireAt, func() { e.onAlert(gen, item) }) {
		log.Debug().Time("fire_at", fireAt).Msg("upcoming episode alert scheduled")
	}
}

func (e *Engine) onAlert(gen uint64, item domain.TrackedItem) {
	cur, ctx, ok := e.current()
	if !ok || cur != gen || !e.track() {
		return
	}
	defer e.wg.Done()
	list, err := e.episodes(ctx, item.ID)
	if err != nil {
		e.logger.Warn().Err(err).Str("item_id", item.ID).Msg("upcoming alert: episode list unavailable")
		return
	}
	if !e.isLive(gen, item.ID) {
		return
	}
	predicted := domain.NextEpisodeNumber(list.Episodes)
	e.logger.Info().Str("item_id", item.ID).Int("episode", predicted).Msg("upcoming episode alert")
	e.notify(ctx, domain.UpcomingEpisodeNotification(item, predicted))
	e.publish(TopicUpcomingEpisode, UpcomingEpisodeEvent{Item: item, PredictedEpisodeNumber: predicted})
}

// AddItem ajoute un item (ignoré si déjà suivi) et le vérifie aussitôt si le moteur tourne.
func (e *Engine) AddItem(ctx context.Context, item domain.TrackedItem) bool {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return false
	}

	e.mu.Lock()
	if domain.IndexOf(e.items, item.ID) >= 0 {
		e.mu.Unlock()
		return false
	}
	e.items = append(e.items, item)
	items := append([]domain.TrackedItem(nil), e.items...)
	running := e.running
	e.mu.Unlock()

	if err := e.tracked.Save(ctx, items); err != nil {
		e.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to persist tracked items")
	}
	if running {
		go e.CheckOne(e.life, item)
	}
	return true
}

func (e *Engine) RemoveItem(ctx context.Context, itemID string) bool {
	e.mu.Lock()
	idx := domain.IndexOf(e.items, itemID)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.items = append(e.items[:idx:idx], e.items[idx+1:]...)
	items := append([]domain.TrackedItem(nil), e.items...)
	e.mu.Unlock()

	if err := e.tracked.Save(ctx, items); err != nil {
		e.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to persist tracked items")
	}
	e.scheduler.Cancel(itemID)
	if err := e.baselines.Forget(ctx, itemID); err != nil {
		e.logger.Warn().Err(err).Str("item_id", itemID).Msg("baselines not persisted after removal")
	}
	return true
}

// ForceCheckAll lance un sweep immédiat. Sans effet si le moteur est arrêté.
func (e *Engine) ForceCheckAll(ctx context.Context) {
	e.Sweep(ctx)
}

func (e *Engine) ForceCheckOne(ctx context.Context, itemID string) bool {
	e.mu.Lock()
	idx := domain.IndexOf(e.items, itemID)
	running := e.running
	var item domain.TrackedItem
	if idx >= 0 {
		item = e.items[idx]
	}
	e.mu.Unlock()

	if idx < 0 || !running {
		return false
	}
	e.CheckOne(ctx, item)
	return true
}

func (e *Engine) Status() domain.ServiceState {
	e.mu.Lock()
	state := domain.ServiceState{
		IsRunning:    e.running,
		TrackedCount: len(e.items),
	}
	if e.lastSweepAt != nil {
		t := *e.lastSweepAt
		state.LastSweepAt = &t
	}
	e.mu.Unlock()

	state.PendingAlertCount = e.scheduler.Pending()
	state.CachedBaselineCount = e.baselines.Len()
	return state
}

func (e *Engine) TrackedItems() []domain.TrackedItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.TrackedItem(nil), e.items...)
}

// ReplaceTrackedItems remplace la liste sans toucher à l'état running.
// Les items retirés perdent leur alerte et leur baseline, comme avec RemoveItem.
func (e *Engine) ReplaceTrackedItems(ctx context.Context, items []domain.TrackedItem) {
	items = domain.DedupeTrackedItems(items)

	e.mu.Lock()
	old := e.items
	e.items = items
	e.mu.Unlock()

	var dropped []string
	for _, it := range old {
		if domain.IndexOf(items, it.ID) < 0 {
			e.scheduler.Cancel(it.ID)
			dropped = append(dropped, it.ID)
		}
	}
	if err := e.tracked.Save(ctx, items); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist tracked items")
	}
	if err := e.baselines.Forget(ctx, dropped...); err != nil {
		e.logger.Warn().Err(err).Strs("item_ids", dropped).Msg("baselines not persisted after list update")
	}
}

// LoadTrackedItems recharge la liste persistée (démarrage du daemon).
func (e *Engine) LoadTrackedItems(ctx context.Context) []domain.TrackedItem {
	items := e.tracked.Load(ctx)
	e.mu.Lock()
	e.items = items
	e.mu.Unlock()
	return append([]domain.TrackedItem(nil), items...)
}

func (e *Engine) episodes(ctx context.Context, itemID string) (domain.EpisodeList, error) {
	raw, err := e.cache.ReadThrough(ctx, "episodes-"+itemID, e.opts.EpisodesMaxAge, func(ctx context.Context) (json.RawMessage, error) {
		list, err := e.source.FetchEpisodes(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(list)
	})
	if err != nil {
		return domain.EpisodeList{}, err
	}
	var list domain.EpisodeList
	if err := json.Unmarshal(raw, &list); err != nil {
		return domain.EpisodeList{}, ParseError("decode cached episodes", err)
	}
	return list, nil
}

func (e *Engine) schedule(ctx context.Context, itemID string) (domain.Schedule, error) {
	raw, err := e.cache.ReadThrough(ctx, "schedule-"+itemID, e.opts.ScheduleMaxAge, func(ctx context.Context) (json.RawMessage, error) {
		sch, err := e.source.FetchSchedule(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(sch)
	})
	if err != nil {
		return domain.Schedule{}, err
	}
	var sch domain.Schedule
	if err := json.Unmarshal(raw, &sch); err != nil {
		return domain.Schedule{}, ParseError("decode cached schedule", err)
	}
	return sch, nil
}

func (e *Engine) notify(ctx context.Context, n domain.Notification) {
	if e.notifications == nil {
		return
	}
	e.notifications.Dispatch(ctx, n)
}

func (e *Engine) publish(topic string, v any) {
	if e.bus == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.bus.Publish(topic, b)
}
