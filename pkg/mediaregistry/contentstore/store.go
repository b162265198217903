// Package contentstore keeps media bytes and their attributes outside the
// ledger. Content is addressed by its SHA-256 digest, and the resulting
// reference is what gets registered as a record's content reference.
package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RefPrefix marks every reference issued by the store.
const RefPrefix = "sha256-"

// DefaultMaxBytes caps a single upload when no limit is configured.
const DefaultMaxBytes int64 = 64 << 20

var (
	// ErrObjectNotFound is returned by backends for unknown keys
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidRef indicates a malformed content reference
	ErrInvalidRef = errors.New("invalid content reference")

	// ErrTooLarge indicates an upload over the configured limit
	ErrTooLarge = errors.New("content exceeds maximum size")

	// ErrEmptyContent indicates an upload with no bytes
	ErrEmptyContent = errors.New("content is empty")
)

// ObjectMeta describes a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// Backend is the object storage used by Store
type Backend interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error)
}

// Ref is a content reference of the form sha256-<hex digest>
type Ref string

func (r Ref) String() string {
	return string(r)
}

// ParseRef validates s as a content reference.
func ParseRef(s string) (Ref, error) {
	if !strings.HasPrefix(s, RefPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	digest := s[len(RefPrefix):]
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref(s), nil
}

// Attributes is the JSON document stored next to the content bytes
type Attributes struct {
	Title     string    `json:"title"`
	Tags      string    `json:"tags"`
	IsVideo   bool      `json:"is_video"`
	FileName  string    `json:"file_name,omitempty"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	UploadID  string    `json:"upload_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store writes content-addressed blobs and attribute documents to a backend
type Store struct {
	backend  Backend
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithMaxBytes sets the upload size limit
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store over backend
func New(backend Backend, options ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Store{
		backend:  backend,
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be positive, got %d", s.maxBytes)
	}
	return s, nil
}

// MaxBytes returns the upload size limit
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

func blobKey(ref Ref) string {
	return "blobs/" + ref.String()
}

func attributesKey(ref Ref) string {
	return "attributes/" + ref.String() + ".json"
}

// Put stores the bytes read from reader and their attributes, returning the
// content reference. Identical bytes map to the same reference; the first
// attribute document written for a reference is kept.
func (s *Store) Put(ctx context.Context, reader io.Reader, attrs Attributes) (Ref, error) {
	data, err := io.ReadAll(io.LimitReader(reader, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}
	if len(data) == 0 {
		return "", ErrEmptyContent
	}

	sum := sha256.Sum256(data)
	ref := Ref(RefPrefix + hex.EncodeToString(sum[:]))

	if attrs.MimeType == "" || attrs.MimeType == "application/octet-stream" {
		attrs.MimeType = http.DetectContentType(data)
	}
	attrs.Size = int64(len(data))
	if attrs.CreatedAt.IsZero() {
		attrs.CreatedAt = s.now()
	}

	blobExists, err := s.exists(ctx, blobKey(ref))
	if err != nil {
		return "", err
	}
	if !blobExists {
		if err := s.backend.Upload(ctx, blobKey(ref), bytes.NewReader(data), attrs.MimeType); err != nil {
			return "", fmt.Errorf("failed to upload content: %w", err)
		}
	}

	attrsExist, err := s.exists(ctx, attributesKey(ref))
	if err != nil {
		return "", err
	}
	if !attrsExist {
		doc, err := json.Marshal(attrs)
		if err != nil {
			return "", fmt.Errorf("failed to encode attributes: %w", err)
		}
		if err := s.backend.Upload(ctx, attributesKey(ref), bytes.NewReader(doc), "application/json"); err != nil {
			return "", fmt.Errorf("failed to upload attributes: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "Content stored", "ref", ref.String(), "size", attrs.Size, "deduplicated", blobExists)
	return ref, nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.backend.GetObjectMeta(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object %s: %w", key, err)
}

// Open returns the content bytes for ref. The caller closes the reader.
func (s *Store) Open(ctx context.Context, ref Ref) (io.ReadCloser, *ObjectMeta, error) {
	meta, err := s.backend.GetObjectMeta(ctx, blobKey(ref))
	if err != nil {
		return nil, nil, err
	}
	body, err := s.backend.Download(ctx, blobKey(ref))
	if err != nil {
		return nil, nil, err
	}
	return body, meta, nil
}

// Attributes returns the attribute document stored for ref
func (s *Store) Attributes(ctx context.Context, ref Ref) (*Attributes, error) {
	body, err := s.backend.Download(ctx, attributesKey(ref))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var attrs Attributes
	if err := json.NewDecoder(body).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes for %s: %w", ref, err)
	}
	return &attrs, nil
}
