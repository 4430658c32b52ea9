package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const heartbeatInterval = 15 * time.Second

// topicSubscriber est implémenté par memorybus: le filtrage se fait à la source.
type topicSubscriber interface {
	SubscribeTopics(prefixes ...string) (<-chan ports.Event, func())
}

// handleEvents relaie les événements du bus en SSE. ?topics=episode.,detection. filtre par préfixe.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.bus == nil {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}

	prefixes := parseTopics(r.URL.Query().Get("topics"))
	var (
		ch     <-chan ports.Event
		cancel func()
	)
	if ts, ok := s.bus.(topicSubscriber); ok {
		ch, cancel = ts.SubscribeTopics(prefixes...)
	} else {
		ch, cancel = s.bus.Subscribe()
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !matches(prefixes, evt.Topic) {
				continue
			}
			payload := evt.Payload
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Topic, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

func parseTopics(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matches(prefixes []string, topic string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}
