package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const (
	TopicDetectionStarted = "detection.started"
	TopicDetectionStopped = "detection.stopped"
	TopicSweepCompleted   = "detection.sweep_completed"
	TopicNewEpisode       = "episode.new"
	TopicUpcomingEpisode  = "episode.upcoming"
)

type DetectionStartedEvent struct {
	TrackedCount int `json:"trackedCount"`
}

type SweepCompletedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

type NewEpisodeEvent struct {
	Item          domain.TrackedItem `json:"item"`
	EpisodeNumber int                `json:"episodeNumber"`
}

type UpcomingEpisodeEvent struct {
	Item                   domain.TrackedItem `json:"item"`
	PredictedEpisodeNumber int                `json:"predictedEpisodeNumber"`
}

// EventHandlers relaie les événements du bus vers des callbacks. Les champs nil sont ignorés.
type EventHandlers struct {
	Logger zerolog.Logger

	OnNotify          func(NewEpisodeEvent)
	OnScheduledNotify func(UpcomingEpisodeEvent)
	OnSweepCompleted  func(SweepCompletedEvent)
	OnStarted         func(DetectionStartedEvent)
	OnStopped         func()
}

// Run consomme le bus jusqu'à l'annulation de ctx ou la fermeture de l'abonnement.
func (h EventHandlers) Run(ctx context.Context, bus ports.EventBus) {
	if bus == nil {
		return
	}
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			h.Handle(evt)
		}
	}
}

func (h EventHandlers) Handle(evt ports.Event) {
	switch evt.Topic {
	case TopicNewEpisode:
		var p NewEpisodeEvent
		if h.OnNotify != nil && h.decode(evt, &p) {
			h.OnNotify(p)
		}
	case TopicUpcomingEpisode:
		var p UpcomingEpisodeEvent
		if h.OnScheduledNotify != nil && h.decode(evt, &p) {
			h.OnScheduledNotify(p)
		}
	case TopicSweepCompleted:
		var p SweepCompletedEvent
		if h.OnSweepCompleted != nil && h.decode(evt, &p) {
			h.OnSweepCompleted(p)
		}
	case TopicDetectionStarted:
		var p DetectionStartedEvent
		if h.OnStarted != nil && h.decode(evt, &p) {
			h.OnStarted(p)
		}
	case TopicDetectionStopped:
		if h.OnStopped != nil {
			h.OnStopped()
		}
	}
}

func (h EventHandlers) decode(evt ports.Event, v any) bool {
	if err := json.Unmarshal(evt.Payload, v); err != nil {
		h.Logger.Warn().Err(err).Str("topic", evt.Topic).Msg("undecodable event payload")
		return false
	}
	return true
}
