package ports

import "context"

// KeyValueStore est la frontière de persistance: des chaînes indexées par clé, qui survivent au redémarrage.
type KeyValueStore interface {
	// Get renvoie ErrNotFound si la clé est absente.
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys liste les clés commençant par prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
