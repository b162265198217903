// Package mediaregistry provides an access-controlled ledger of media
// descriptors with pluggable repository backends.
//
// It exposes a single Service interface that assigns every submitted media
// descriptor a per-owner index and a public handle, enforces that only the
// owner of a record may delete it, and lets an administrator suspend all
// mutations. Implementations of repositories (e.g., memory, Postgres) are
// provided under subpackages, together with a content store adapter for the
// media bytes themselves.
//
// Ledger Semantics
//
// Records are never erased. Deleting a record turns it into a tombstone that
// reads as absent forever; its owner index and public handle are never
// reissued. Owner indices start at 1 and follow the number of records the
// owner has ever added, so gaps left by deletions are permanent.
//
// All mutating operations are linearized behind one lock. Each successful
// mutation returns exactly one Event and publishes it to the configured
// EventSink before the lock is released.
package mediaregistry
