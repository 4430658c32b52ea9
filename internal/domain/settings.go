package domain

// Permission reprend les trois états d'une permission de notification navigateur.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func (p Permission) Valid() bool {
	return p == PermissionDefault || p == PermissionGranted || p == PermissionDenied
}

type Settings struct {
	NotificationPermission Permission `json:"notificationPermission"`

	// Permet de couper un type d'alerte sans toucher à la détection.
	NotifyNewEpisodes bool `json:"notifyNewEpisodes"`
	NotifyUpcoming    bool `json:"notifyUpcoming"`
}

func DefaultSettings() Settings {
	return Settings{
		NotificationPermission: PermissionDefault,
		NotifyNewEpisodes:      true,
		NotifyUpcoming:         true,
	}
}
