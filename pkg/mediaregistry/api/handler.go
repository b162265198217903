package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore"
)

// multipartMemory is kept in memory while parsing uploads; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// Handler serves the registry over HTTP
type Handler struct {
	registry mediaregistry.Service
	store    *contentstore.Store
	identity Identity
	logger   *slog.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithContentStore enables the upload and content routes
func WithContentStore(store *contentstore.Store) HandlerOption {
	return func(h *Handler) {
		h.store = store
	}
}

// WithIdentity sets the identity provider for authenticated routes
func WithIdentity(identity Identity) HandlerOption {
	return func(h *Handler) {
		h.identity = identity
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler. Without an identity provider the caller is
// read from the X-Caller-Address header.
func NewHandler(registry mediaregistry.Service, options ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		identity: HeaderIdentity{},
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Routes returns the router for the /api/v1 endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public reads
	r.Get("/status", h.GetStatus)
	r.Get("/media/handle/{handle}", h.GetMediaByHandle)
	if h.store != nil {
		r.Get("/content/{ref}", h.GetContent)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.identity.Middleware)

		r.Post("/media", h.AddMedia)
		if h.store != nil {
			r.Post("/media/upload", h.UploadMedia)
		}
		r.Get("/media", h.ListMedia)
		r.Get("/media/index/{ownerIndex}", h.GetMediaByIndex)
		r.Delete("/media/handle/{handle}", h.DeleteMedia)
		r.Get("/me/counts", h.GetCounts)

		r.Post("/admin/pause", h.Pause)
		r.Post("/admin/unpause", h.Unpause)
		r.Post("/admin/transfer", h.TransferAdmin)
	})

	return r
}

func caller(r *http.Request) mediaregistry.Address {
	c, _ := CallerFromContext(r.Context())
	return c
}

// AddMediaRequest is the body of POST /media
type AddMediaRequest struct {
	ContentRef string `json:"content_ref"`
	IsVideo    bool   `json:"is_video"`
	Title      string `json:"title"`
	Tags       string `json:"tags"`
}

// AddMediaResponse is returned when a record is registered
type AddMediaResponse struct {
	PublicHandle string                `json:"public_handle"`
	OwnerIndex   uint64                `json:"owner_index"`
	ContentRef   string                `json:"content_ref"`
	UploadID     string                `json:"upload_id,omitempty"`
	Events       []mediaregistry.Event `json:"events"`
}

// MediaListResponse wraps the caller's live records
type MediaListResponse struct {
	Items []*mediaregistry.MediaView `json:"items"`
	Count int                        `json:"count"`
}

// TransferAdminRequest is the body of POST /admin/transfer
type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// AddMedia registers a descriptor for content that is already stored
func (h *Handler) AddMedia(w http.ResponseWriter, r *http.Request) {
	var req AddMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "invalid JSON body")
		return
	}

	result, err := h.registry.AddOwnedMedia(r.Context(), caller(r), mediaregistry.AddMediaRequest{
		ContentRef: req.ContentRef,
		IsVideo:    req.IsVideo,
		Title:      req.Title,
		Tags:       req.Tags,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AddMediaResponse{
		PublicHandle: result.PublicHandle.String(),
		OwnerIndex:   result.OwnerIndex,
		ContentRef:   req.ContentRef,
		Events:       result.Events,
	})
}

// UploadMedia stores a multipart file in the content store and registers it
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	// Refuse before accepting any bytes while the registry is paused
	status, err := h.registry.Status(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if status.Paused {
		writeError(w, r, http.StatusServiceUnavailable, CodeSuspended, mediaregistry.ReasonPaused)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, CodeTooLarge, "upload exceeds maximum size")
			return
		}
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "title is required")
		return
	}
	isVideo, _ := strconv.ParseBool(r.FormValue("is_video"))

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "file is required")
		return
	}
	defer file.Close()

	uploadID := uuid.NewString()
	ref, err := h.store.Put(r.Context(), file, contentstore.Attributes{
		Title:    title,
		Tags:     r.FormValue("tags"),
		IsVideo:  isVideo,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		UploadID: uploadID,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	result, err := h.registry.AddOwnedMedia(r.Context(), caller(r), mediaregistry.AddMediaRequest{
		ContentRef: ref.String(),
		IsVideo:    isVideo,
		Title:      title,
		Tags:       r.FormValue("tags"),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Media uploaded",
		"upload_id", uploadID, "ref", ref.String(), "public_handle", result.PublicHandle.String())

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AddMediaResponse{
		PublicHandle: result.PublicHandle.String(),
		OwnerIndex:   result.OwnerIndex,
		ContentRef:   ref.String(),
		UploadID:     uploadID,
		Events:       result.Events,
	})
}

// ListMedia returns the caller's live records
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := h.registry.ListOwnedMedia(r.Context(), caller(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, MediaListResponse{Items: items, Count: len(items)})
}

// GetMediaByIndex resolves one of the caller's records by owner index
func (h *Handler) GetMediaByIndex(w http.ResponseWriter, r *http.Request) {
	ownerIndex, err := strconv.ParseInt(chi.URLParam(r, "ownerIndex"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "owner index must be an integer")
		return
	}

	view, err := h.registry.GetMedia(r.Context(), caller(r), ownerIndex)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// GetMediaByHandle resolves any live record by its public handle
func (h *Handler) GetMediaByHandle(w http.ResponseWriter, r *http.Request) {
	handle := mediaregistry.PublicHandle(chi.URLParam(r, "handle"))
	view, err := h.registry.GetMediaByPublicHandle(r.Context(), caller(r), handle)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// DeleteMedia tombstones one of the caller's records
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	handle := mediaregistry.PublicHandle(chi.URLParam(r, "handle"))
	receipt, err := h.registry.DeleteOwnedMedia(r.Context(), caller(r), handle)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, receipt)
}

// GetCounts returns the caller's counters
func (h *Handler) GetCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.registry.GetUserMediaIndex(r.Context(), caller(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, counts)
}

// GetStatus returns the admin and pause state
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.registry.Status(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.registry.Pause(r.Context(), caller(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, receipt)
}

func (h *Handler) Unpause(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.registry.Unpause(r.Context(), caller(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, receipt)
}

func (h *Handler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req TransferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "invalid JSON body")
		return
	}

	receipt, err := h.registry.TransferAdmin(r.Context(), caller(r), mediaregistry.Address(strings.TrimSpace(req.NewAdmin)))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	render.JSON(w, r, receipt)
}

// GetContent streams stored bytes by content reference
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	ref, err := contentstore.ParseRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	body, meta, err := h.store.Open(r.Context(), ref)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", meta.Size))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "Content stream interrupted", "ref", ref.String(), "error", err)
	}
}
