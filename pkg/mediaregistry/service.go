package mediaregistry

import "context"

// Service defines the main interface for the media registry
type Service interface {
	// Media operations
	AddOwnedMedia(ctx context.Context, caller Address, req AddMediaRequest) (*AddMediaResult, error)
	GetMedia(ctx context.Context, caller Address, ownerIndex int64) (*MediaView, error)
	GetMediaByPublicHandle(ctx context.Context, caller Address, handle PublicHandle) (*MediaView, error)
	DeleteOwnedMedia(ctx context.Context, caller Address, handle PublicHandle) (*Receipt, error)
	ListOwnedMedia(ctx context.Context, caller Address) ([]*MediaView, error)

	// Counters
	GetUserMediaIndex(ctx context.Context, caller Address) (*FileCounts, error)

	// Administration
	Pause(ctx context.Context, caller Address) (*Receipt, error)
	Unpause(ctx context.Context, caller Address) (*Receipt, error)
	TransferAdmin(ctx context.Context, caller Address, newAdmin Address) (*Receipt, error)
	Status(ctx context.Context) (*Status, error)
}
