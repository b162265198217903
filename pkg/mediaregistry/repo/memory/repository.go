package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/media-registry/pkg/mediaregistry"
)

type ownerKey struct {
	owner mediaregistry.Address
	index uint64
}

// Repository implements mediaregistry.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	control *mediaregistry.ControlState
	records map[mediaregistry.PublicHandle]*mediaregistry.MediaRecord
	handles map[ownerKey]mediaregistry.PublicHandle
	counts  map[mediaregistry.Address]*mediaregistry.FileCounts
	now     func() time.Time
}

// New creates a new in-memory repository
func New() mediaregistry.Repository {
	return &Repository{
		records: make(map[mediaregistry.PublicHandle]*mediaregistry.MediaRecord),
		handles: make(map[ownerKey]mediaregistry.PublicHandle),
		counts:  make(map[mediaregistry.Address]*mediaregistry.FileCounts),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Control state

func (r *Repository) InitControl(ctx context.Context, admin mediaregistry.Address) (*mediaregistry.ControlState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.control == nil {
		r.control = &mediaregistry.ControlState{Admin: admin, UpdatedAt: r.now()}
	}
	controlCopy := *r.control
	return &controlCopy, nil
}

func (r *Repository) GetControl(ctx context.Context) (*mediaregistry.ControlState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.control == nil {
		return nil, mediaregistry.ErrControlNotInitialized
	}
	controlCopy := *r.control
	return &controlCopy, nil
}

func (r *Repository) SetPaused(ctx context.Context, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.control == nil {
		return mediaregistry.ErrControlNotInitialized
	}
	r.control.Paused = paused
	r.control.UpdatedAt = r.now()
	return nil
}

func (r *Repository) SetAdmin(ctx context.Context, admin mediaregistry.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.control == nil {
		return mediaregistry.ErrControlNotInitialized
	}
	r.control.Admin = admin
	r.control.UpdatedAt = r.now()
	return nil
}

// Records

func (r *Repository) InsertRecord(ctx context.Context, record *mediaregistry.MediaRecord, sequence uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.control == nil {
		return mediaregistry.ErrControlNotInitialized
	}

	// Check everything before touching any map
	if r.control.Paused {
		return mediaregistry.ErrSuspended
	}
	if _, exists := r.records[record.PublicHandle]; exists {
		return mediaregistry.ErrConflict
	}
	if sequence <= r.control.Sequence {
		return mediaregistry.ErrStaleState
	}
	key := ownerKey{owner: record.Owner, index: record.OwnerIndex}
	counts := r.counts[record.Owner]
	var total uint64
	if counts != nil {
		total = counts.TotalAddedFiles
	}
	if _, exists := r.handles[key]; exists || record.OwnerIndex != total+1 {
		return mediaregistry.ErrStaleState
	}

	if counts == nil {
		counts = &mediaregistry.FileCounts{}
		r.counts[record.Owner] = counts
	}

	recordCopy := *record
	recordCopy.Exists = true
	recordCopy.DeletedAt = nil
	r.records[record.PublicHandle] = &recordCopy
	r.handles[key] = record.PublicHandle
	counts.TotalAddedFiles++
	counts.CurrentFilesCount++
	r.control.Sequence = sequence

	return nil
}

func (r *Repository) TombstoneRecord(ctx context.Context, handle mediaregistry.PublicHandle, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.control != nil && r.control.Paused {
		return mediaregistry.ErrSuspended
	}
	record, exists := r.records[handle]
	if !exists || !record.Exists {
		return mediaregistry.ErrNotFound
	}

	deletedAt := at
	record.Exists = false
	record.DeletedAt = &deletedAt
	if counts := r.counts[record.Owner]; counts != nil && counts.CurrentFilesCount > 0 {
		counts.CurrentFilesCount--
	}

	return nil
}

func (r *Repository) GetRecord(ctx context.Context, handle mediaregistry.PublicHandle) (*mediaregistry.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[handle]
	if !exists {
		return nil, mediaregistry.ErrNotFound
	}
	return copyRecord(record), nil
}

func (r *Repository) GetHandle(ctx context.Context, owner mediaregistry.Address, ownerIndex uint64) (mediaregistry.PublicHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, exists := r.handles[ownerKey{owner: owner, index: ownerIndex}]
	if !exists {
		return "", mediaregistry.ErrNotFound
	}
	return handle, nil
}

func (r *Repository) ListRecords(ctx context.Context, owner mediaregistry.Address) ([]*mediaregistry.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediaregistry.MediaRecord
	for _, record := range r.records {
		if record.Owner == owner && record.Exists {
			result = append(result, copyRecord(record))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OwnerIndex < result[j].OwnerIndex
	})

	return result, nil
}

func (r *Repository) GetCounts(ctx context.Context, owner mediaregistry.Address) (*mediaregistry.FileCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts, exists := r.counts[owner]
	if !exists {
		return &mediaregistry.FileCounts{}, nil
	}
	countsCopy := *counts
	return &countsCopy, nil
}

func copyRecord(record *mediaregistry.MediaRecord) *mediaregistry.MediaRecord {
	recordCopy := *record
	if record.DeletedAt != nil {
		deletedAt := *record.DeletedAt
		recordCopy.DeletedAt = &deletedAt
	}
	return &recordCopy
}
