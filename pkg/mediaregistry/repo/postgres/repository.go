package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction. Begin on a transaction opens a savepoint.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements mediaregistry.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) mediaregistry.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) mediaregistry.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s: %w", operation, pgErr.ConstraintName, mediaregistry.ErrConflict)
		case "23514": // check_violation
			return fmt.Errorf("%s: constraint %s violated: %w", operation, pgErr.ConstraintName, mediaregistry.ErrConflict)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// inTx runs fn in a transaction and commits when it returns nil.
func (r *Repository) inTx(ctx context.Context, operation string, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError(operation, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError(operation, err)
	}
	return nil
}

// Control state

func (r *Repository) InitControl(ctx context.Context, admin mediaregistry.Address) (*mediaregistry.ControlState, error) {
	query := `
		INSERT INTO registry_control (id, admin, paused, sequence, updated_at)
		VALUES (1, $1, FALSE, 0, now())
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, admin.String()); err != nil {
		return nil, r.handlePostgresError("init control", err)
	}
	return r.GetControl(ctx)
}

func (r *Repository) GetControl(ctx context.Context) (*mediaregistry.ControlState, error) {
	query := `SELECT admin, paused, sequence, updated_at FROM registry_control WHERE id = 1`

	var control mediaregistry.ControlState
	var admin string
	var sequence int64
	err := r.db.QueryRow(ctx, query).Scan(&admin, &control.Paused, &sequence, &control.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaregistry.ErrControlNotInitialized
		}
		return nil, r.handlePostgresError("get control", err)
	}

	control.Admin = mediaregistry.Address(admin)
	control.Sequence = uint64(sequence)
	return &control, nil
}

func (r *Repository) SetPaused(ctx context.Context, paused bool) error {
	query := `UPDATE registry_control SET paused = $1, updated_at = now() WHERE id = 1`
	return r.updateControl(ctx, "set paused", query, paused)
}

func (r *Repository) SetAdmin(ctx context.Context, admin mediaregistry.Address) error {
	query := `UPDATE registry_control SET admin = $1, updated_at = now() WHERE id = 1`
	return r.updateControl(ctx, "set admin", query, admin.String())
}

func (r *Repository) updateControl(ctx context.Context, operation, query string, arg interface{}) error {
	result, err := r.db.Exec(ctx, query, arg)
	if err != nil {
		return r.handlePostgresError(operation, err)
	}
	if result.RowsAffected() == 0 {
		return mediaregistry.ErrControlNotInitialized
	}
	return nil
}

// Records

func (r *Repository) InsertRecord(ctx context.Context, record *mediaregistry.MediaRecord, sequence uint64) error {
	return r.inTx(ctx, "insert record", func(tx pgx.Tx) error {
		var paused bool
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT paused, sequence FROM registry_control WHERE id = 1 FOR UPDATE`).Scan(&paused, &current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return mediaregistry.ErrControlNotInitialized
			}
			return r.handlePostgresError("lock control", err)
		}
		if paused {
			return mediaregistry.ErrSuspended
		}
		if int64(sequence) <= current {
			return fmt.Errorf("sequence %d does not advance %d: %w", sequence, current, mediaregistry.ErrStaleState)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO owner_counter (owner) VALUES ($1) ON CONFLICT (owner) DO NOTHING`,
			record.Owner.String()); err != nil {
			return r.handlePostgresError("ensure owner counter", err)
		}

		var total int64
		err = tx.QueryRow(ctx,
			`SELECT total_added FROM owner_counter WHERE owner = $1 FOR UPDATE`,
			record.Owner.String()).Scan(&total)
		if err != nil {
			return r.handlePostgresError("lock owner counter", err)
		}
		if record.OwnerIndex != uint64(total)+1 {
			return fmt.Errorf("owner index %d does not follow total %d: %w", record.OwnerIndex, total, mediaregistry.ErrStaleState)
		}

		insert := `
			INSERT INTO media_record (
				public_handle, owner, owner_index, content_ref, is_video,
				title, tags, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.Exec(ctx, insert,
			record.PublicHandle.String(), record.Owner.String(), int64(record.OwnerIndex),
			record.ContentRef, record.IsVideo, record.Title, record.Tags, record.CreatedAt); err != nil {
			return r.handlePostgresError("insert record", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE owner_counter
			SET total_added = total_added + 1, current_count = current_count + 1
			WHERE owner = $1`, record.Owner.String()); err != nil {
			return r.handlePostgresError("increment owner counter", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE registry_control
			SET sequence = $1, updated_at = now()
			WHERE id = 1`, int64(sequence)); err != nil {
			return r.handlePostgresError("advance sequence", err)
		}

		return nil
	})
}

func (r *Repository) TombstoneRecord(ctx context.Context, handle mediaregistry.PublicHandle, at time.Time) error {
	return r.inTx(ctx, "tombstone record", func(tx pgx.Tx) error {
		// Holds off a concurrent pause until the tombstone commits
		var paused bool
		err := tx.QueryRow(ctx, `SELECT paused FROM registry_control WHERE id = 1 FOR SHARE`).Scan(&paused)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return mediaregistry.ErrControlNotInitialized
			}
			return r.handlePostgresError("lock control", err)
		}
		if paused {
			return mediaregistry.ErrSuspended
		}

		var owner string
		err = tx.QueryRow(ctx, `
			UPDATE media_record SET deleted_at = $2
			WHERE public_handle = $1 AND deleted_at IS NULL
			RETURNING owner`, handle.String(), at).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return mediaregistry.ErrNotFound
			}
			return r.handlePostgresError("tombstone record", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE owner_counter SET current_count = current_count - 1
			WHERE owner = $1 AND current_count > 0`, owner); err != nil {
			return r.handlePostgresError("decrement owner counter", err)
		}
		return nil
	})
}

const recordColumns = `public_handle, owner, owner_index, content_ref, is_video, title, tags, created_at, deleted_at`

func scanRecord(row pgx.Row) (*mediaregistry.MediaRecord, error) {
	var record mediaregistry.MediaRecord
	var handle, owner string
	var ownerIndex int64
	err := row.Scan(&handle, &owner, &ownerIndex, &record.ContentRef, &record.IsVideo,
		&record.Title, &record.Tags, &record.CreatedAt, &record.DeletedAt)
	if err != nil {
		return nil, err
	}
	record.PublicHandle = mediaregistry.PublicHandle(handle)
	record.Owner = mediaregistry.Address(owner)
	record.OwnerIndex = uint64(ownerIndex)
	record.Exists = record.DeletedAt == nil
	return &record, nil
}

func (r *Repository) GetRecord(ctx context.Context, handle mediaregistry.PublicHandle) (*mediaregistry.MediaRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM media_record WHERE public_handle = $1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, handle.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaregistry.ErrNotFound
		}
		return nil, r.handlePostgresError("get record", err)
	}
	return record, nil
}

func (r *Repository) GetHandle(ctx context.Context, owner mediaregistry.Address, ownerIndex uint64) (mediaregistry.PublicHandle, error) {
	query := `SELECT public_handle FROM media_record WHERE owner = $1 AND owner_index = $2`

	var handle string
	err := r.db.QueryRow(ctx, query, owner.String(), int64(ownerIndex)).Scan(&handle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", mediaregistry.ErrNotFound
		}
		return "", r.handlePostgresError("get handle", err)
	}
	return mediaregistry.PublicHandle(handle), nil
}

func (r *Repository) ListRecords(ctx context.Context, owner mediaregistry.Address) ([]*mediaregistry.MediaRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM media_record
		WHERE owner = $1 AND deleted_at IS NULL
		ORDER BY owner_index`

	rows, err := r.db.Query(ctx, query, owner.String())
	if err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	defer rows.Close()

	var result []*mediaregistry.MediaRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan record", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	return result, nil
}

func (r *Repository) GetCounts(ctx context.Context, owner mediaregistry.Address) (*mediaregistry.FileCounts, error) {
	query := `SELECT total_added, current_count FROM owner_counter WHERE owner = $1`

	var total, current int64
	err := r.db.QueryRow(ctx, query, owner.String()).Scan(&total, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &mediaregistry.FileCounts{}, nil
		}
		return nil, r.handlePostgresError("get counts", err)
	}
	return &mediaregistry.FileCounts{
		TotalAddedFiles:   uint64(total),
		CurrentFilesCount: uint64(current),
	}, nil
}
