package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/repo/memory"
)

func newRecord(owner mediaregistry.Address, index uint64, handle string) *mediaregistry.MediaRecord {
	return &mediaregistry.MediaRecord{
		PublicHandle: mediaregistry.PublicHandle(handle),
		OwnerIndex:   index,
		Owner:        owner,
		ContentRef:   "sha256-abc",
		Title:        "Title",
		CreatedAt:    time.Now().UTC(),
		Exists:       true,
	}
}

func TestMemoryRepository_Control(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, err := repo.GetControl(ctx)
	assert.ErrorIs(t, err, mediaregistry.ErrControlNotInitialized)

	control, err := repo.InitControl(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, mediaregistry.Address("admin"), control.Admin)
	assert.False(t, control.Paused)

	t.Run("InitControl keeps existing admin", func(t *testing.T) {
		control, err := repo.InitControl(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.Address("admin"), control.Admin)
	})

	t.Run("SetPaused and SetAdmin", func(t *testing.T) {
		require.NoError(t, repo.SetPaused(ctx, true))
		require.NoError(t, repo.SetAdmin(ctx, "next"))

		control, err := repo.GetControl(ctx)
		require.NoError(t, err)
		assert.True(t, control.Paused)
		assert.Equal(t, mediaregistry.Address("next"), control.Admin)
	})
}

func TestMemoryRepository_Records(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	_, err := repo.InitControl(ctx, "admin")
	require.NoError(t, err)

	require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 1, "h1"), 1))
	require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 2, "h2"), 2))

	t.Run("sequence recorded", func(t *testing.T) {
		control, err := repo.GetControl(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), control.Sequence)
	})

	t.Run("counts", func(t *testing.T) {
		counts, err := repo.GetCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), counts.TotalAddedFiles)
		assert.Equal(t, uint64(2), counts.CurrentFilesCount)

		counts, err = repo.GetCounts(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.FileCounts{}, *counts)
	})

	t.Run("conflicts leave state unchanged", func(t *testing.T) {
		assert.ErrorIs(t, repo.InsertRecord(ctx, newRecord("bob", 1, "h1"), 3), mediaregistry.ErrConflict)
		assert.ErrorIs(t, repo.InsertRecord(ctx, newRecord("alice", 2, "h3"), 3), mediaregistry.ErrConflict)
		assert.ErrorIs(t, repo.InsertRecord(ctx, newRecord("alice", 4, "h3"), 3), mediaregistry.ErrConflict)

		counts, err := repo.GetCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, counts.TotalAddedFiles)

		control, err := repo.GetControl(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), control.Sequence)
	})

	t.Run("GetHandle", func(t *testing.T) {
		handle, err := repo.GetHandle(ctx, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.PublicHandle("h2"), handle)

		_, err = repo.GetHandle(ctx, "bob", 2)
		assert.ErrorIs(t, err, mediaregistry.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		record, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		record.Title = "changed"

		again, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, "Title", again.Title)
	})

	t.Run("tombstone", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, repo.TombstoneRecord(ctx, "h1", at))
		assert.ErrorIs(t, repo.TombstoneRecord(ctx, "h1", at), mediaregistry.ErrNotFound)
		assert.ErrorIs(t, repo.TombstoneRecord(ctx, "missing", at), mediaregistry.ErrNotFound)

		record, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.False(t, record.Exists)
		require.NotNil(t, record.DeletedAt)

		counts, err := repo.GetCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), counts.TotalAddedFiles)
		assert.Equal(t, uint64(1), counts.CurrentFilesCount)
	})

	t.Run("ListRecords returns live records in index order", func(t *testing.T) {
		require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 3, "h3"), 3))

		records, err := repo.ListRecords(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, uint64(2), records[0].OwnerIndex)
		assert.Equal(t, uint64(3), records[1].OwnerIndex)
	})
}

func TestMemoryRepository_WritesRecheckControl(t *testing.T) {
	ctx := context.Background()

	t.Run("paused registry rejects writes", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.InitControl(ctx, "admin")
		require.NoError(t, err)
		require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 1, "h1"), 1))
		require.NoError(t, repo.SetPaused(ctx, true))

		assert.ErrorIs(t, repo.InsertRecord(ctx, newRecord("alice", 2, "h2"), 2), mediaregistry.ErrSuspended)
		assert.ErrorIs(t, repo.TombstoneRecord(ctx, "h1", time.Now().UTC()), mediaregistry.ErrSuspended)

		record, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, record.Exists)

		counts, err := repo.GetCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.FileCounts{TotalAddedFiles: 1, CurrentFilesCount: 1}, *counts)

		require.NoError(t, repo.SetPaused(ctx, false))
		require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 2, "h2"), 2))
	})

	t.Run("stale index or sequence is retryable", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.InitControl(ctx, "admin")
		require.NoError(t, err)
		require.NoError(t, repo.InsertRecord(ctx, newRecord("alice", 1, "h1"), 1))

		err = repo.InsertRecord(ctx, newRecord("bob", 1, "h2"), 1)
		assert.ErrorIs(t, err, mediaregistry.ErrStaleState)
		err = repo.InsertRecord(ctx, newRecord("alice", 1, "h2"), 2)
		assert.ErrorIs(t, err, mediaregistry.ErrStaleState)

		// A taken handle is a plain conflict
		err = repo.InsertRecord(ctx, newRecord("bob", 1, "h1"), 2)
		assert.ErrorIs(t, err, mediaregistry.ErrConflict)
		assert.NotErrorIs(t, err, mediaregistry.ErrStaleState)
	})
}
