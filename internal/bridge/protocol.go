// Package bridge relie le contexte page (CLI) au contexte d'arrière-plan (daemon) qui héberge le moteur.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

// MessageType est l'ensemble fermé des messages échangés.
type MessageType string

const (
	MsgStartDetection   MessageType = "START_EPISODE_DETECTION"
	MsgStopDetection    MessageType = "STOP_EPISODE_DETECTION"
	MsgUpdateTracked    MessageType = "UPDATE_SUBSCRIBED_ANIME"
	MsgForceCheck       MessageType = "FORCE_EPISODE_CHECK"
	MsgGetStatus        MessageType = "GET_SERVICE_STATUS"
	MsgTestNotification MessageType = "TEST_NOTIFICATION"

	// Réponses.
	MsgServiceStatus MessageType = "SERVICE_STATUS"
	MsgAck           MessageType = "ACK"
	MsgUnsupported   MessageType = "UNSUPPORTED"
	MsgError         MessageType = "ERROR"
)

var ErrUnsupported = errors.New("unsupported bridge message")

// Envelope porte un message et son identifiant; une réponse reprend l'id de la requête.
type Envelope struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UnsupportedPayload struct {
	Type MessageType `json:"type"`
}

func NewEnvelope(t MessageType, data any) (Envelope, error) {
	env := Envelope{ID: xid.New().String(), Type: t}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = b
	}
	return env, nil
}

func (e Envelope) reply(t MessageType, data any) Envelope {
	out := Envelope{ID: e.ID, Type: t}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			out.Data = b
		}
	}
	return out
}

func (e Envelope) errorReply(err error) Envelope {
	return e.reply(MsgError, ErrorPayload{Message: err.Error()})
}

// decodeItems accepte une liste absente ou null comme liste vide.
func (e Envelope) decodeItems() ([]domain.TrackedItem, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, nil
	}
	var items []domain.TrackedItem
	if err := json.Unmarshal(e.Data, &items); err != nil {
		return nil, fmt.Errorf("decode tracked items: %w", err)
	}
	return items, nil
}
