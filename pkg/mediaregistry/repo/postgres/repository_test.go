package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

func testRecord(owner mediaregistry.Address, index uint64, handle string) *mediaregistry.MediaRecord {
	return &mediaregistry.MediaRecord{
		PublicHandle: mediaregistry.PublicHandle(handle),
		OwnerIndex:   index,
		Owner:        owner,
		ContentRef:   "sha256-abc",
		Title:        "Title",
		Tags:         "tags",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		Exists:       true,
	}
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@host/db", migrateURL("postgres://u:p@host/db"))
	assert.Equal(t, "pgx5://u:p@host/db", migrateURL("postgresql://u:p@host/db"))
	assert.Equal(t, "pgx5://host/db", migrateURL("pgx5://host/db"))
}

func TestPostgresRepository_Control(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()

		_, err := repo.GetControl(ctx)
		assert.ErrorIs(t, err, mediaregistry.ErrControlNotInitialized)
		assert.ErrorIs(t, repo.SetPaused(ctx, true), mediaregistry.ErrControlNotInitialized)

		control, err := repo.InitControl(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.Address("admin"), control.Admin)

		control, err = repo.InitControl(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.Address("admin"), control.Admin)

		require.NoError(t, repo.SetPaused(ctx, true))
		require.NoError(t, repo.SetAdmin(ctx, "next"))
		control, err = repo.GetControl(ctx)
		require.NoError(t, err)
		assert.True(t, control.Paused)
		assert.Equal(t, mediaregistry.Address("next"), control.Admin)
	})
}

func TestPostgresRepository_Records(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()
		_, err := repo.InitControl(ctx, "admin")
		require.NoError(t, err)

		first := testRecord("alice", 1, "h1")
		require.NoError(t, repo.InsertRecord(ctx, first, 1))
		require.NoError(t, repo.InsertRecord(ctx, testRecord("alice", 2, "h2"), 2))

		got, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, first.Title, got.Title)
		assert.True(t, got.Exists)
		assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

		// Conflicts roll back completely
		assert.ErrorIs(t, repo.InsertRecord(ctx, testRecord("bob", 1, "h1"), 3), mediaregistry.ErrConflict)
		assert.ErrorIs(t, repo.InsertRecord(ctx, testRecord("alice", 4, "h4"), 3), mediaregistry.ErrConflict)
		counts, err := repo.GetCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, counts.TotalAddedFiles)

		control, err := repo.GetControl(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), control.Sequence)

		handle, err := repo.GetHandle(ctx, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.PublicHandle("h2"), handle)
		_, err = repo.GetHandle(ctx, "alice", 9)
		assert.ErrorIs(t, err, mediaregistry.ErrNotFound)

		require.NoError(t, repo.TombstoneRecord(ctx, "h1", time.Now().UTC()))
		assert.ErrorIs(t, repo.TombstoneRecord(ctx, "h1", time.Now().UTC()), mediaregistry.ErrNotFound)

		got, err = repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.False(t, got.Exists)

		counts, err = repo.GetCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, mediaregistry.FileCounts{TotalAddedFiles: 2, CurrentFilesCount: 1}, *counts)

		records, err := repo.ListRecords(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, uint64(2), records[0].OwnerIndex)
	})
}

func TestPostgresRepository_Registry(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		ctx := context.Background()
		svc, err := mediaregistry.New(ctx,
			mediaregistry.WithRepository(NewWithPool(db.Pool)),
			mediaregistry.WithAdmin("admin"),
		)
		require.NoError(t, err)

		result, err := svc.AddOwnedMedia(ctx, "alice", mediaregistry.AddMediaRequest{
			ContentRef: "sha256-abc",
			Title:      "Media file title",
			Tags:       "Media file description",
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), result.OwnerIndex)

		_, err = svc.DeleteOwnedMedia(ctx, "bob", result.PublicHandle)
		assert.ErrorIs(t, err, mediaregistry.ErrNotOwner)

		_, err = svc.DeleteOwnedMedia(ctx, "alice", result.PublicHandle)
		require.NoError(t, err)

		_, err = svc.GetMedia(ctx, "alice", 1)
		assert.ErrorIs(t, err, mediaregistry.ErrNotFound)
	})
}

func TestPostgresRepository_WritesRecheckControl(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()
		_, err := repo.InitControl(ctx, "admin")
		require.NoError(t, err)
		require.NoError(t, repo.InsertRecord(ctx, testRecord("alice", 1, "h1"), 1))

		// Stale writes from another writer are retryable
		assert.ErrorIs(t, repo.InsertRecord(ctx, testRecord("bob", 1, "h2"), 1), mediaregistry.ErrStaleState)
		assert.ErrorIs(t, repo.InsertRecord(ctx, testRecord("alice", 1, "h2"), 2), mediaregistry.ErrStaleState)

		require.NoError(t, repo.SetPaused(ctx, true))
		assert.ErrorIs(t, repo.InsertRecord(ctx, testRecord("alice", 2, "h2"), 2), mediaregistry.ErrSuspended)
		assert.ErrorIs(t, repo.TombstoneRecord(ctx, "h1", time.Now().UTC()), mediaregistry.ErrSuspended)

		got, err := repo.GetRecord(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, got.Exists)

		counts, err := repo.GetCounts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), counts.TotalAddedFiles)
		assert.Equal(t, uint64(1), counts.CurrentFilesCount)
	})
}
