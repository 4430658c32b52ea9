package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

func TestSettingsService_DefaultsOnMissingOrCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	svc := NewSettingsService(kv)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	require.NoError(t, kv.Put(ctx, settingsKey, "{oops"))
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	_, err = svc.Put(ctx, domain.Settings{NotificationPermission: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNotificationService_RequestPermission(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	settings := NewSettingsService(kv)
	notifier := newFakeNotifier()
	svc := NewNotificationService(zerolog.Nop(), notifier, settings)

	assert.Equal(t, domain.PermissionDefault, svc.Permission(ctx))

	p, err := svc.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, p)
	st, _ := settings.Get(ctx)
	assert.Equal(t, domain.PermissionGranted, st.NotificationPermission)

	// Une décision explicite n'est jamais réécrite par une nouvelle demande.
	require.NoError(t, svc.SetPermission(ctx, domain.PermissionDenied))
	p, err = svc.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, p)
}

func TestNotificationService_UnavailableNotifierIsDenied(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.available = false
	svc := NewNotificationService(zerolog.Nop(), notifier, NewSettingsService(newMemKV()))

	p, err := svc.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, p)

	svc.Dispatch(context.Background(), domain.NewEpisodeNotification(item("a"), 2))
	assert.Empty(t, notifier.Sent())
}

func TestNotificationService_DispatchRespectsPermissionAndPreferences(t *testing.T) {
	ctx := context.Background()
	settings := NewSettingsService(newMemKV())
	notifier := newFakeNotifier()
	svc := NewNotificationService(zerolog.Nop(), notifier, settings)

	svc.Dispatch(ctx, domain.NewEpisodeNotification(item("a"), 2))
	assert.Empty(t, notifier.Sent(), "default permission must not present anything")

	_, err := settings.Put(ctx, domain.Settings{
		NotificationPermission: domain.PermissionGranted,
		NotifyNewEpisodes:      true,
		NotifyUpcoming:         false,
	})
	require.NoError(t, err)

	svc.Dispatch(ctx, domain.NewEpisodeNotification(item("a"), 2))
	svc.Dispatch(ctx, domain.UpcomingEpisodeNotification(item("a"), 3))
	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.NotificationNewEpisode, sent[0].Kind)
}
