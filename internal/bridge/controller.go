package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

// Controller implémente ports.DetectionController au-dessus d'un Transport.
type Controller struct {
	transport Transport
}

func NewController(t Transport) *Controller {
	return &Controller{transport: t}
}

func (c *Controller) Background() bool { return c.transport.Background() }

func (c *Controller) Start(ctx context.Context, items []domain.TrackedItem) error {
	_, err := c.call(ctx, MsgStartDetection, items)
	return err
}

func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.call(ctx, MsgStopDetection, nil)
	return err
}

func (c *Controller) UpdateTrackedItems(ctx context.Context, items []domain.TrackedItem) error {
	if items == nil {
		items = []domain.TrackedItem{}
	}
	_, err := c.call(ctx, MsgUpdateTracked, items)
	return err
}

func (c *Controller) ForceCheck(ctx context.Context) error {
	_, err := c.call(ctx, MsgForceCheck, nil)
	return err
}

func (c *Controller) Status(ctx context.Context) (domain.ServiceState, error) {
	reply, err := c.call(ctx, MsgGetStatus, nil)
	if err != nil {
		return domain.ServiceState{}, err
	}
	if reply.Type != MsgServiceStatus {
		return domain.ServiceState{}, fmt.Errorf("unexpected reply %s", reply.Type)
	}
	var st domain.ServiceState
	if err := json.Unmarshal(reply.Data, &st); err != nil {
		return domain.ServiceState{}, fmt.Errorf("decode service status: %w", err)
	}
	return st, nil
}

// TestNotification demande au contexte de détection de présenter une notification de test.
func (c *Controller) TestNotification(ctx context.Context) error {
	_, err := c.call(ctx, MsgTestNotification, nil)
	return err
}

func (c *Controller) call(ctx context.Context, t MessageType, data any) (Envelope, error) {
	env, err := NewEnvelope(t, data)
	if err != nil {
		return Envelope{}, err
	}
	reply, err := c.transport.Send(ctx, env)
	if err != nil {
		return Envelope{}, err
	}
	if reply.ID != env.ID {
		return Envelope{}, fmt.Errorf("reply id mismatch: sent %s, got %s", env.ID, reply.ID)
	}
	switch reply.Type {
	case MsgUnsupported:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnsupported, t)
	case MsgError:
		var p ErrorPayload
		_ = json.Unmarshal(reply.Data, &p)
		return Envelope{}, errors.New(p.Message)
	}
	return reply, nil
}

const probeTimeout = 2 * time.Second

// Connect privilégie le daemon à workerURL; s'il ne répond pas, fallback fournit un transport local.
// L'appelant ne voit que Background().
func Connect(ctx context.Context, logger zerolog.Logger, workerURL string, fallback func() (Transport, error)) (*Controller, error) {
	if workerURL != "" {
		remote := NewHTTP(workerURL, nil)
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := remote.Ping(pingCtx)
		cancel()
		if err == nil {
			logger.Debug().Str("worker", workerURL).Msg("using background worker")
			return NewController(remote), nil
		}
		logger.Info().Err(err).Str("worker", workerURL).Msg("background worker unavailable, falling back to in-process detection")
	}
	if fallback == nil {
		return nil, errors.New("no background worker and no local fallback")
	}
	local, err := fallback()
	if err != nil {
		return nil, fmt.Errorf("local fallback: %w", err)
	}
	return NewController(local), nil
}
