package mediaregistry

import "strings"

// AddMediaRequest describes a media item to register.
type AddMediaRequest struct {
	ContentRef string `json:"content_ref"`
	IsVideo    bool   `json:"is_video"`
	Title      string `json:"title"`
	Tags       string `json:"tags"`
}

// Validate rejects requests without a content reference or title.
func (r AddMediaRequest) Validate() error {
	if strings.TrimSpace(r.ContentRef) == "" {
		return opError("add_media", ErrInvalidArgument, "content reference is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return opError("add_media", ErrInvalidArgument, "title is required")
	}
	return nil
}

// AddMediaResult is returned by AddOwnedMedia.
type AddMediaResult struct {
	PublicHandle PublicHandle `json:"public_handle"`
	OwnerIndex   uint64       `json:"owner_index"`
	Events       []Event      `json:"events"`
}
