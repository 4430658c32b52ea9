package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

const (
	DefaultUpdateDebounce = time.Second

	restartKey = "restart"
)

// Dispatcher exécute les messages côté moteur.
type Dispatcher struct {
	logger        zerolog.Logger
	engine        *app.Engine
	notifications *app.NotificationService
	clock         clockwork.Clock

	UpdateDebounce time.Duration

	// Redémarrage différé après UPDATE_SUBSCRIBED_ANIME; une nouvelle mise à jour remplace la précédente.
	restart *app.Scheduler
}

func NewDispatcher(logger zerolog.Logger, engine *app.Engine, notifications *app.NotificationService, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		logger:         logger,
		engine:         engine,
		notifications:  notifications,
		clock:          clock,
		UpdateDebounce: DefaultUpdateDebounce,
		restart:        app.NewScheduler(clock),
	}
}

// Handle ne renvoie jamais d'erreur de transport: les échecs sont des réponses ERROR ou UNSUPPORTED.
func (d *Dispatcher) Handle(ctx context.Context, env Envelope) Envelope {
	log := d.logger.With().Str("msg_id", env.ID).Str("type", string(env.Type)).Logger()

	switch env.Type {
	case MsgStartDetection:
		items, err := env.decodeItems()
		if err != nil {
			return env.errorReply(err)
		}
		d.restart.Cancel(restartKey)
		d.engine.Start(ctx, items)
		return env.reply(MsgAck, nil)

	case MsgStopDetection:
		d.restart.Cancel(restartKey)
		d.engine.Stop()
		return env.reply(MsgAck, nil)

	case MsgUpdateTracked:
		items, err := env.decodeItems()
		if err != nil {
			return env.errorReply(err)
		}
		d.update(ctx, items)
		return env.reply(MsgAck, nil)

	case MsgForceCheck:
		go d.engine.ForceCheckAll(context.WithoutCancel(ctx))
		return env.reply(MsgAck, nil)

	case MsgGetStatus:
		return env.reply(MsgServiceStatus, d.engine.Status())

	case MsgTestNotification:
		var n domain.Notification
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &n); err != nil {
				return env.errorReply(fmt.Errorf("decode notification: %w", err))
			}
		}
		if n.Title == "" {
			n = testNotification()
		}
		if d.notifications != nil {
			d.notifications.Dispatch(ctx, n)
		}
		return env.reply(MsgAck, nil)

	default:
		log.Warn().Msg("unsupported bridge message")
		return env.reply(MsgUnsupported, UnsupportedPayload{Type: env.Type})
	}
}

// update remplace la liste; si le moteur tourne (ou doit redémarrer), il est arrêté puis relancé après le debounce.
func (d *Dispatcher) update(ctx context.Context, items []domain.TrackedItem) {
	_, restartPending := d.restart.FireAt(restartKey)
	d.engine.ReplaceTrackedItems(ctx, items)
	if !d.engine.Running() && !restartPending {
		return
	}

	d.engine.Stop()
	delay := d.UpdateDebounce
	if delay <= 0 {
		delay = DefaultUpdateDebounce
	}
	d.restart.Schedule(restartKey, d.clock.Now().Add(delay), func() {
		items := d.engine.TrackedItems()
		d.logger.Info().Int("tracked", len(items)).Msg("restarting detection with updated list")
		d.engine.Start(context.Background(), items)
	})
}

// Pending indique si un redémarrage différé est en attente.
func (d *Dispatcher) Pending() bool {
	_, ok := d.restart.FireAt(restartKey)
	return ok
}

func testNotification() domain.Notification {
	return domain.Notification{
		Kind:  "test",
		Title: "Test Background Notification",
		Body:  "This is a test notification from the background service!",
		Icon:  "/logo.png",
		Tag:   "test-notification",
	}
}
