// Package cached decorates a mediaregistry.Repository with an expiring LRU
// cache for record and owner-index lookups.
package cached

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

type ownerKey struct {
	owner mediaregistry.Address
	index uint64
}

// Repository caches positive lookups only. An owner index never moves to a
// different handle, so handle entries need no invalidation. Record entries
// are dropped when the record is tombstoned.
type Repository struct {
	mediaregistry.Repository

	records *expirable.LRU[mediaregistry.PublicHandle, mediaregistry.MediaRecord]
	handles *expirable.LRU[ownerKey, mediaregistry.PublicHandle]
	hits    prometheus.Counter
	misses  prometheus.Counter
}

// New wraps next. Hit and miss counters are registered with reg when it is
// not nil.
func New(next mediaregistry.Repository, size int, ttl time.Duration, reg prometheus.Registerer) (*Repository, error) {
	if next == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}

	factory := promauto.With(reg)
	return &Repository{
		Repository: next,
		records:    expirable.NewLRU[mediaregistry.PublicHandle, mediaregistry.MediaRecord](size, nil, ttl),
		handles:    expirable.NewLRU[ownerKey, mediaregistry.PublicHandle](size, nil, ttl),
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "media_registry_cache_hits_total",
			Help: "Lookups served from the registry read cache.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "media_registry_cache_misses_total",
			Help: "Lookups that fell through to the repository.",
		}),
	}, nil
}

func (r *Repository) GetRecord(ctx context.Context, handle mediaregistry.PublicHandle) (*mediaregistry.MediaRecord, error) {
	if record, ok := r.records.Get(handle); ok {
		r.hits.Inc()
		return copyRecord(&record), nil
	}
	r.misses.Inc()

	record, err := r.Repository.GetRecord(ctx, handle)
	if err != nil {
		return nil, err
	}
	r.records.Add(handle, *copyRecord(record))
	return record, nil
}

func (r *Repository) GetHandle(ctx context.Context, owner mediaregistry.Address, ownerIndex uint64) (mediaregistry.PublicHandle, error) {
	key := ownerKey{owner: owner, index: ownerIndex}
	if handle, ok := r.handles.Get(key); ok {
		r.hits.Inc()
		return handle, nil
	}
	r.misses.Inc()

	handle, err := r.Repository.GetHandle(ctx, owner, ownerIndex)
	if err != nil {
		return "", err
	}
	r.handles.Add(key, handle)
	return handle, nil
}

func (r *Repository) TombstoneRecord(ctx context.Context, handle mediaregistry.PublicHandle, at time.Time) error {
	err := r.Repository.TombstoneRecord(ctx, handle, at)
	r.records.Remove(handle)
	return err
}

// Hits exposes the cache hit counter.
func (r *Repository) Hits() prometheus.Counter {
	return r.hits
}

func copyRecord(record *mediaregistry.MediaRecord) *mediaregistry.MediaRecord {
	recordCopy := *record
	if record.DeletedAt != nil {
		deletedAt := *record.DeletedAt
		recordCopy.DeletedAt = &deletedAt
	}
	return &recordCopy
}
