package mediaregistry

import (
	"strings"
	"time"
)

// Address identifies a caller as supplied by the identity provider.
type Address string

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}

// PublicHandle is the opaque, globally unique key used to share a record
// independently of its owner.
type PublicHandle string

func (h PublicHandle) String() string {
	return string(h)
}

// MediaRecord is one ledger entry. Exists is false once the record has been
// deleted; it never flips back.
type MediaRecord struct {
	PublicHandle PublicHandle `json:"public_handle"`
	OwnerIndex   uint64       `json:"owner_index"`
	Owner        Address      `json:"owner"`
	ContentRef   string       `json:"content_ref"`
	IsVideo      bool         `json:"is_video"`
	Title        string       `json:"title"`
	Tags         string       `json:"tags"`
	CreatedAt    time.Time    `json:"created_at"`
	Exists       bool         `json:"exists"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
}

// View returns the caller-facing projection of the record.
func (r *MediaRecord) View() *MediaView {
	return &MediaView{
		PublicHandle: r.PublicHandle,
		OwnerIndex:   r.OwnerIndex,
		Owner:        r.Owner,
		ContentRef:   r.ContentRef,
		IsVideo:      r.IsVideo,
		Title:        r.Title,
		Tags:         r.Tags,
		CreatedAt:    r.CreatedAt,
	}
}

// MediaView is a record as returned by lookups. It carries no tombstone state
// because lookups only ever return live records.
type MediaView struct {
	PublicHandle PublicHandle `json:"public_handle"`
	OwnerIndex   uint64       `json:"owner_index"`
	Owner        Address      `json:"owner"`
	ContentRef   string       `json:"content_ref"`
	IsVideo      bool         `json:"is_video"`
	Title        string       `json:"title"`
	Tags         string       `json:"tags"`
	CreatedAt    time.Time    `json:"created_at"`
}

// FileCounts holds the per-owner counters.
type FileCounts struct {
	TotalAddedFiles   uint64 `json:"total_added_files"`
	CurrentFilesCount uint64 `json:"current_files_count"`
}

// ControlState is the registry-wide state guarded by the access control gate.
// Sequence is the last value consumed by handle generation.
type ControlState struct {
	Admin     Address   `json:"admin"`
	Paused    bool      `json:"paused"`
	Sequence  uint64    `json:"sequence"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the read-only view of the control state.
type Status struct {
	Admin    Address `json:"admin"`
	Paused   bool    `json:"paused"`
	Sequence uint64  `json:"sequence"`
}
