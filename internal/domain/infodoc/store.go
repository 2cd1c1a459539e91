package infodoc

import (
	"context"

	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

// Store is the document store abstraction that info docs live in.
type Store interface {
	// Get retrieves an InfoDoc by Id, returning NotFound if there is none.
	Get(ctx context.Context, id Id) (*InfoDoc, error)

	// Put writes the given InfoDoc, returning its new Version.
	//
	// If the doc has a Version, the write only succeeds if it matches the persisted one.
	// If it does not, the write only succeeds if there is no persisted doc. Both cases
	// return InvalidVersion otherwise.
	//
	// Docs marked Deleted are removed.
	Put(ctx context.Context, doc *InfoDoc) (metadata.Version, error)

	// BatchGet retrieves InfoDocs for the given Ids in one round trip.
	//
	// Returns exactly one Row per Id, in the same order.
	BatchGet(ctx context.Context, ids []Id) ([]Row, error)

	// BatchWrite writes the given InfoDocs in one round trip, following the same rules as Put
	// for each doc.
	//
	// Returns exactly one WriteResult per doc, in the same order. The error return is reserved
	// for failures of the request as a whole.
	BatchWrite(ctx context.Context, docs []InfoDoc) ([]WriteResult, error)
}

// Row is a single BatchGet result. Doc is nil if nothing was found for ID.
type Row struct {
	ID  Id
	Doc *InfoDoc
}

// WriteResult is a single BatchWrite result. Err is nil if the write went through.
type WriteResult struct {
	ID      Id
	Version metadata.Version
	Err     error
}

func (r *WriteResult) IsOk() bool {
	return r.Err == nil
}

func (r *WriteResult) IsConflict() bool {
	_, isConflict := r.Err.(InvalidVersion)
	return isConflict
}
