package mediaregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// maxHandleAttempts bounds retries when a generated handle is taken or
// another writer advanced the ledger.
const maxHandleAttempts = 8

// registry implements the Service interface
type registry struct {
	mu         sync.RWMutex
	repository Repository
	eventSink  EventSink
	handles    HandleGenerator
	logger     *slog.Logger
	now        func() time.Time
	admin      Address
}

// Option represents a functional option for configuring the registry
type Option func(*registry)

// WithRepository sets the repository for the registry
func WithRepository(repo Repository) Option {
	return func(r *registry) {
		r.repository = repo
	}
}

// WithEventSink sets the event sink for the registry
func WithEventSink(sink EventSink) Option {
	return func(r *registry) {
		r.eventSink = sink
	}
}

// WithHandleGenerator replaces the default SHA-256 handle generator
func WithHandleGenerator(gen HandleGenerator) Option {
	return func(r *registry) {
		r.handles = gen
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source used for creation and deletion times
func WithClock(now func() time.Time) Option {
	return func(r *registry) {
		r.now = now
	}
}

// WithAdmin sets the admin used when the repository has no control state yet.
// An existing control state always wins.
func WithAdmin(admin Address) Option {
	return func(r *registry) {
		r.admin = admin
	}
}

// New creates a registry over the configured repository. The repository's
// control state is initialized with the WithAdmin address on first use.
func New(ctx context.Context, options ...Option) (Service, error) {
	r := &registry{
		handles: NewHandleGenerator(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(r)
	}

	if r.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.admin.IsZero() {
		if _, err := r.repository.GetControl(ctx); err != nil {
			if errors.Is(err, ErrControlNotInitialized) {
				return nil, fmt.Errorf("admin is required to initialize the registry")
			}
			return nil, fmt.Errorf("failed to load registry control state: %w", err)
		}
		return r, nil
	}

	control, err := r.repository.InitControl(ctx, r.admin)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry control state: %w", err)
	}
	if control.Admin != r.admin {
		r.logger.Warn("Configured admin ignored, registry already has an admin",
			"configured", r.admin.String(), "admin", control.Admin.String())
	}

	return r, nil
}

// Media operations

func (r *registry) AddOwnedMedia(ctx context.Context, caller Address, req AddMediaRequest) (*AddMediaResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	control, err := r.repository.GetControl(ctx)
	if err != nil {
		return nil, opError(string(opAddMedia), err, "")
	}
	if err := checkGate(opAddMedia, caller, control); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, opError(string(opAddMedia), ErrInvalidArgument, "caller address is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	counts, err := r.repository.GetCounts(ctx, caller)
	if err != nil {
		return nil, opError(string(opAddMedia), err, "")
	}

	record := &MediaRecord{
		OwnerIndex: counts.TotalAddedFiles + 1,
		Owner:      caller,
		ContentRef: req.ContentRef,
		IsVideo:    req.IsVideo,
		Title:      req.Title,
		Tags:       req.Tags,
		CreatedAt:  r.now(),
		Exists:     true,
	}

	sequence := control.Sequence
	for attempt := 1; ; attempt++ {
		sequence++
		record.PublicHandle = r.handles.Generate(caller, record.OwnerIndex, sequence)
		err = r.repository.InsertRecord(ctx, record, sequence)
		if err == nil {
			break
		}
		if errors.Is(err, ErrSuspended) {
			return nil, opError(string(opAddMedia), ErrSuspended, ReasonPaused)
		}
		if attempt >= maxHandleAttempts {
			return nil, opError(string(opAddMedia), err, "")
		}

		if errors.Is(err, ErrStaleState) {
			// Another writer shares the repository; re-read and re-gate
			control, err = r.repository.GetControl(ctx)
			if err != nil {
				return nil, opError(string(opAddMedia), err, "")
			}
			if err := checkGate(opAddMedia, caller, control); err != nil {
				return nil, err
			}
			counts, err = r.repository.GetCounts(ctx, caller)
			if err != nil {
				return nil, opError(string(opAddMedia), err, "")
			}
			record.OwnerIndex = counts.TotalAddedFiles + 1
			sequence = control.Sequence
			r.logger.WarnContext(ctx, "Ledger advanced by another writer, retrying",
				"owner", caller.String(), "owner_index", record.OwnerIndex)
			continue
		}

		if !errors.Is(err, ErrConflict) || !r.handleTaken(ctx, record.PublicHandle) {
			return nil, opError(string(opAddMedia), err, "")
		}
		r.logger.WarnContext(ctx, "Generated public handle already issued, regenerating",
			"public_handle", record.PublicHandle.String(), "sequence", sequence)
	}

	event := Event{
		Type:         EventMediaAdded,
		PublicHandle: record.PublicHandle,
		OwnerIndex:   record.OwnerIndex,
		Owner:        caller,
		OccurredAt:   record.CreatedAt,
	}
	r.publish(ctx, event)

	return &AddMediaResult{
		PublicHandle: record.PublicHandle,
		OwnerIndex:   record.OwnerIndex,
		Events:       []Event{event},
	}, nil
}

func (r *registry) handleTaken(ctx context.Context, handle PublicHandle) bool {
	_, err := r.repository.GetRecord(ctx, handle)
	return err == nil
}

func (r *registry) GetMedia(ctx context.Context, caller Address, ownerIndex int64) (*MediaView, error) {
	if ownerIndex <= 0 {
		return nil, opError("get_media", ErrInvalidArgument, ReasonIndexPositive)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, err := r.repository.GetHandle(ctx, caller, uint64(ownerIndex))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, opError("get_media", ErrNotFound, ReasonOwnerLookup)
		}
		return nil, opError("get_media", err, "")
	}

	record, err := r.repository.GetRecord(ctx, handle)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, opError("get_media", err, "")
	}
	if err != nil || !record.Exists {
		return nil, opError("get_media", ErrNotFound, ReasonOwnerLookup)
	}

	return record.View(), nil
}

func (r *registry) GetMediaByPublicHandle(ctx context.Context, caller Address, handle PublicHandle) (*MediaView, error) {
	if handle == "" {
		return nil, opError("get_media_by_handle", ErrNotFound, ReasonHandleLookup)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.repository.GetRecord(ctx, handle)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, opError("get_media_by_handle", err, "")
	}
	if err != nil || !record.Exists {
		return nil, opError("get_media_by_handle", ErrNotFound, ReasonHandleLookup)
	}

	return record.View(), nil
}

func (r *registry) DeleteOwnedMedia(ctx context.Context, caller Address, handle PublicHandle) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	control, err := r.repository.GetControl(ctx)
	if err != nil {
		return nil, opError(string(opDeleteMedia), err, "")
	}
	if err := checkGate(opDeleteMedia, caller, control); err != nil {
		return nil, err
	}

	record, err := r.repository.GetRecord(ctx, handle)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, opError(string(opDeleteMedia), err, "")
	}
	if err != nil || !record.Exists {
		return nil, opError(string(opDeleteMedia), ErrNotFound, ReasonHandleLookup)
	}
	if err := checkOwner(opDeleteMedia, caller, record); err != nil {
		return nil, err
	}

	now := r.now()
	if err := r.repository.TombstoneRecord(ctx, handle, now); err != nil {
		if errors.Is(err, ErrSuspended) {
			return nil, opError(string(opDeleteMedia), ErrSuspended, ReasonPaused)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, opError(string(opDeleteMedia), ErrNotFound, ReasonHandleLookup)
		}
		return nil, opError(string(opDeleteMedia), err, "")
	}

	event := Event{
		Type:         EventMediaDeleted,
		PublicHandle: handle,
		Owner:        record.Owner,
		OccurredAt:   now,
	}
	r.publish(ctx, event)

	return &Receipt{Events: []Event{event}}, nil
}

func (r *registry) ListOwnedMedia(ctx context.Context, caller Address) ([]*MediaView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := r.repository.ListRecords(ctx, caller)
	if err != nil {
		return nil, opError("list_media", err, "")
	}

	views := make([]*MediaView, 0, len(records))
	for _, record := range records {
		if record.Exists {
			views = append(views, record.View())
		}
	}
	return views, nil
}

// Counters

func (r *registry) GetUserMediaIndex(ctx context.Context, caller Address) (*FileCounts, error) {
	if caller.IsZero() {
		return nil, opError("get_user_media_index", ErrInvalidArgument, "caller address is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	counts, err := r.repository.GetCounts(ctx, caller)
	if err != nil {
		return nil, opError("get_user_media_index", err, "")
	}
	return counts, nil
}

// Administration

func (r *registry) Pause(ctx context.Context, caller Address) (*Receipt, error) {
	return r.setPaused(ctx, opPause, caller, true)
}

func (r *registry) Unpause(ctx context.Context, caller Address) (*Receipt, error) {
	return r.setPaused(ctx, opUnpause, caller, false)
}

func (r *registry) setPaused(ctx context.Context, op operation, caller Address, paused bool) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	control, err := r.repository.GetControl(ctx)
	if err != nil {
		return nil, opError(string(op), err, "")
	}
	if err := checkGate(op, caller, control); err != nil {
		return nil, err
	}
	if control.Paused == paused {
		if paused {
			return nil, opError(string(op), ErrAlreadyPaused, "")
		}
		return nil, opError(string(op), ErrNotPaused, "")
	}

	if err := r.repository.SetPaused(ctx, paused); err != nil {
		return nil, opError(string(op), err, "")
	}

	event := Event{Type: EventUnpaused, Admin: caller, OccurredAt: r.now()}
	if paused {
		event.Type = EventPaused
	}
	r.logger.InfoContext(ctx, "Registry pause state changed", "paused", paused, "admin", caller.String())
	r.publish(ctx, event)

	return &Receipt{Events: []Event{event}}, nil
}

func (r *registry) TransferAdmin(ctx context.Context, caller Address, newAdmin Address) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	control, err := r.repository.GetControl(ctx)
	if err != nil {
		return nil, opError(string(opTransferAdmin), err, "")
	}
	if err := checkGate(opTransferAdmin, caller, control); err != nil {
		return nil, err
	}
	if newAdmin.IsZero() {
		return nil, opError(string(opTransferAdmin), ErrInvalidArgument, "new admin address is required")
	}

	if err := r.repository.SetAdmin(ctx, newAdmin); err != nil {
		return nil, opError(string(opTransferAdmin), err, "")
	}

	event := Event{
		Type:       EventAdminChanged,
		Previous:   control.Admin,
		Next:       newAdmin,
		OccurredAt: r.now(),
	}
	r.logger.InfoContext(ctx, "Registry admin changed", "previous", control.Admin.String(), "next", newAdmin.String())
	r.publish(ctx, event)

	return &Receipt{Events: []Event{event}}, nil
}

func (r *registry) Status(ctx context.Context) (*Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	control, err := r.repository.GetControl(ctx)
	if err != nil {
		return nil, opError("status", err, "")
	}
	return &Status{
		Admin:    control.Admin,
		Paused:   control.Paused,
		Sequence: control.Sequence,
	}, nil
}

// publish delivers event to the sink. Sink failures are logged and never
// undo the committed mutation.
func (r *registry) publish(ctx context.Context, event Event) {
	if r.eventSink == nil {
		return
	}
	if err := r.eventSink.Publish(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish registry event", "type", string(event.Type), "error", err)
	}
}
