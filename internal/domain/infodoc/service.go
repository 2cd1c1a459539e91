package infodoc

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service maintains info docs on behalf of the write-path and the processing engine.
type Service interface {
	// Get returns the canonical InfoDoc for the owner, or NotFound.
	Get(ctx context.Context, owner OwnerId) (*InfoDoc, error)

	// RecordWrite records that the owner doc was written at the given time, creating the
	// InfoDoc if needed. Retries on version conflicts.
	RecordWrite(ctx context.Context, owner OwnerId, at time.Time) (*InfoDoc, error)

	// RecordWrites is RecordWrite for many owners, using batch reads and writes. Only the owners
	// that hit version conflicts are retried.
	//
	// Not all-or-nothing: returns BulkWriteErrors listing the docs that could not be written.
	RecordWrites(ctx context.Context, owners []OwnerId, at time.Time) error

	// Resolve is ResolveMany for a single Change
	Resolve(ctx context.Context, change *Change) (*InfoDoc, error)

	// ResolveMany finds or creates the InfoDoc for every Change, migrating docs from the legacy
	// store as needed. Each Change gets its Info set to a copy of its InfoDoc.
	//
	// Returns one InfoDoc per distinct owner id.
	ResolveMany(ctx context.Context, changes []*Change) ([]InfoDoc, error)

	// PersistTransitions replaces the stored transitions of the Change's InfoDoc with the ones
	// pending on Change.Info. Retries on version conflicts.
	//
	// Returns NotResolved if the Change has no Info.
	PersistTransitions(ctx context.Context, change *Change) error

	// BulkUpdate writes the given InfoDocs. Conflicting docs are re-read and only the fields owned
	// by the processing engine are carried over before retrying.
	BulkUpdate(ctx context.Context, docs []InfoDoc) error

	// DeleteForOwner removes the owner's InfoDoc. Does nothing if there isn't one.
	DeleteForOwner(ctx context.Context, owner OwnerId) error
}

// <-- Domain Errors

// ServiceErr is an error interface for Service and Store errors about a specific doc
type ServiceErr interface {
	error
	Id() Id
}

// NotFound is returned when there is no InfoDoc for a given Id
type NotFound struct {
	ID Id
}

func (e NotFound) Error() string {
	return fmt.Sprintf("Could not find info doc [%v]", e.ID)
}

func (e NotFound) Id() Id {
	return e.ID
}

// InvalidVersion is returned when a write was attempted with a version that
// did not match the persisted one
type InvalidVersion struct {
	ID Id
}

func (e InvalidVersion) Error() string {
	return fmt.Sprintf("Version provided did not match persisted version for [%v]", e.ID)
}

func (e InvalidVersion) Id() Id {
	return e.ID
}

// RetryExhausted is returned when a write kept hitting version conflicts
type RetryExhausted struct {
	ID       Id
	Attempts uint
}

func (e RetryExhausted) Error() string {
	return fmt.Sprintf("Gave up writing info doc [%v] after [%d] conflicting attempts", e.ID, e.Attempts)
}

func (e RetryExhausted) Id() Id {
	return e.ID
}

// MigrationFailed is returned when resolution could not store a created or migrated InfoDoc
type MigrationFailed struct {
	ID         Id
	Underlying error
}

func (e MigrationFailed) Error() string {
	return fmt.Sprintf("Failed to store a created or migrated info doc [%v]: %v", e.ID, e.Underlying)
}

func (e MigrationFailed) Id() Id {
	return e.ID
}

func (e MigrationFailed) Unwrap() error {
	return e.Underlying
}

// BulkWriteErrors holds per-doc failures of a batch write other than version conflicts.
//
// When Aborted is nil, docs not listed were written. Otherwise a later round stopped on Aborted
// and docs still being retried at that point may not have been written either.
type BulkWriteErrors struct {
	Errors  []WriteResult
	Aborted error
}

func (e BulkWriteErrors) Error() string {
	descriptions := make([]string, 0, len(e.Errors))
	for _, r := range e.Errors {
		descriptions = append(descriptions, fmt.Sprintf("[%v]: %v", r.ID, r.Err))
	}
	msg := fmt.Sprintf("Failed to write [%d] info docs: %s", len(e.Errors), strings.Join(descriptions, ", "))
	if e.Aborted != nil {
		msg = fmt.Sprintf("%s; then gave up: %v", msg, e.Aborted)
	}
	return msg
}

func (e BulkWriteErrors) Unwrap() error {
	return e.Aborted
}

// NotResolved is returned when transitions are persisted for a Change that was never resolved
type NotResolved struct {
	ID Id
}

func (e NotResolved) Error() string {
	return fmt.Sprintf("No resolved info doc to persist transitions for [%v]", e.ID)
}

func (e NotResolved) Id() Id {
	return e.ID
}

// InvalidPersistedData is returned when a store holds something that can't be read as an InfoDoc
type InvalidPersistedData struct {
	ID            Id
	PersistedData interface{}
}

func (e InvalidPersistedData) Error() string {
	return fmt.Sprintf("Invalid persisted data for [%v]: [%v]", e.ID, e.PersistedData)
}

func (e InvalidPersistedData) Id() Id {
	return e.ID
}

//     Errors -->
