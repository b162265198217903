package mediaregistry

import (
	"context"
	"time"
)

// Repository persists the ledger. Every method that changes state must apply
// all of its writes or none of them.
type Repository interface {
	// Control state
	InitControl(ctx context.Context, admin Address) (*ControlState, error)
	GetControl(ctx context.Context) (*ControlState, error)
	SetPaused(ctx context.Context, paused bool) error
	SetAdmin(ctx context.Context, admin Address) error

	// InsertRecord stores a new live record, maps (owner, index) to its handle,
	// increments both owner counters and records sequence as the last consumed
	// handle sequence. The pause flag is re-checked atomically with the write:
	// it returns ErrSuspended when the registry is paused. It returns
	// ErrConflict when the handle is already taken, and ErrStaleState when the
	// index does not follow the owner's total or sequence does not advance the
	// stored sequence.
	InsertRecord(ctx context.Context, record *MediaRecord, sequence uint64) error

	// TombstoneRecord marks a live record deleted and decrements the owner's
	// current count. It returns ErrSuspended when the registry is paused at
	// the time of the write, and ErrNotFound when the record is absent or
	// already deleted.
	TombstoneRecord(ctx context.Context, handle PublicHandle, at time.Time) error

	// GetRecord returns the record including tombstones, or ErrNotFound.
	GetRecord(ctx context.Context, handle PublicHandle) (*MediaRecord, error)

	// GetHandle resolves an owner index, or returns ErrNotFound.
	GetHandle(ctx context.Context, owner Address, ownerIndex uint64) (PublicHandle, error)

	// ListRecords returns the owner's live records ordered by owner index.
	ListRecords(ctx context.Context, owner Address) ([]*MediaRecord, error)

	GetCounts(ctx context.Context, owner Address) (*FileCounts, error)
}

// EventSink receives notifications after a mutation has been committed.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// HandleGenerator derives a public handle for a new record. Implementations
// must return distinct handles for distinct sequence values.
type HandleGenerator interface {
	Generate(owner Address, ownerIndex uint64, sequence uint64) PublicHandle
}
