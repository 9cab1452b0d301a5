package store

import (
	"context"
	"time"

	"wanderguide/pkg/model"
)

// POIStore handles landmark catalog persistence.
type POIStore interface {
	GetPOI(ctx context.Context, id string) (*model.POI, error)
	SavePOI(ctx context.Context, poi *model.POI) error
	SavePOIs(ctx context.Context, pois []*model.POI) error
	ListPOIs(ctx context.Context) ([]*model.POI, error)
	ListPOIsInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.POI, error)
	DeletePOI(ctx context.Context, id string) error
	DeletePOIsBySource(ctx context.Context, source string) (int64, error)
}

// DispatchStore handles the history of contextual update attempts.
type DispatchStore interface {
	SaveDispatch(ctx context.Context, d *model.Dispatch) error
	ListDispatches(ctx context.Context, sessionID string, limit int) ([]*model.Dispatch, error)
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
	PruneCache(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
