package domain

import "fmt"

type NotificationKind string

const (
	NotificationNewEpisode NotificationKind = "new-episode"
	NotificationUpcoming   NotificationKind = "scheduled"
	NotificationSubscribed NotificationKind = "subscribed"
)

type Notification struct {
	Kind   NotificationKind `json:"type"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	Icon   string           `json:"icon,omitempty"`
	Tag    string           `json:"tag"`
	URL    string           `json:"url,omitempty"`
	ItemID string           `json:"animeId"`
	// Episode vaut 0 pour une confirmation d'abonnement.
	Episode            int  `json:"episodeNumber,omitempty"`
	RequireInteraction bool `json:"requireInteraction"`
}

const defaultIcon = "/logo.png"

func icon(item TrackedItem) string {
	if item.Poster != "" {
		return item.Poster
	}
	return defaultIcon
}

func NewEpisodeNotification(item TrackedItem, episode int) Notification {
	return Notification{
		Kind:               NotificationNewEpisode,
		Title:              "New Episode Available!",
		Body:               fmt.Sprintf("%s - Episode %d is now available to watch!", item.DisplayTitle(), episode),
		Icon:               icon(item),
		Tag:                fmt.Sprintf("anime-%s-ep-%d", item.ID, episode),
		URL:                fmt.Sprintf("/watch/%s?ep=%d", item.ID, episode),
		ItemID:             item.ID,
		Episode:            episode,
		RequireInteraction: true,
	}
}

func UpcomingEpisodeNotification(item TrackedItem, episode int) Notification {
	return Notification{
		Kind:    NotificationUpcoming,
		Title:   fmt.Sprintf("Episode %d Coming Soon!", episode),
		Body:    fmt.Sprintf("%s - Episode %d will be available soon!", item.DisplayTitle(), episode),
		Icon:    icon(item),
		Tag:     fmt.Sprintf("anime-%s-scheduled", item.ID),
		URL:     "/" + item.ID,
		ItemID:  item.ID,
		Episode: episode,
	}
}

func SubscribedNotification(item TrackedItem) Notification {
	return Notification{
		Kind:   NotificationSubscribed,
		Title:  fmt.Sprintf("Subscribed to %s", item.DisplayTitle()),
		Body:   "You will be notified when new episodes are released!",
		Icon:   icon(item),
		Tag:    "anime-" + item.ID,
		ItemID: item.ID,
	}
}
