package store

import (
	"context"

	"lorekeeper/internal/entity"
)

// Store persists identity-keyed records per story and entity kind. Keys are
// normalized with entity.NormalizeKey; at most one record exists per key.
type Store interface {
	Close(ctx context.Context) error

	List(ctx context.Context, storyID string, kind entity.Kind) ([]entity.Entity, error)
	Get(ctx context.Context, storyID string, kind entity.Kind, key string) (entity.Entity, error)
	Upsert(ctx context.Context, storyID string, e entity.Entity) error
	Delete(ctx context.Context, storyID string, kind entity.Kind, key string) (bool, error)

	// Search matches query words against record names and text fields. An
	// empty kind searches every kind.
	Search(ctx context.Context, storyID, query string, kind entity.Kind) ([]SearchResult, error)
}
