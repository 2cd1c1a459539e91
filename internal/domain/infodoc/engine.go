package infodoc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
	"github.com/lloydmeta/infodocs/internal/domain/tracing"
)

// Engine is the Service implementation backed by a canonical and a legacy Store.
//
// It holds no mutable state of its own; all coordination between concurrent writers happens
// through store versions.
type Engine struct {
	canonical Store
	legacy    Store
	settings  config.InfoDocs
	tracer    tracing.Tracer
}

// NewEngine returns an Engine that keeps info docs in canonical and migrates them out of legacy
func NewEngine(canonical Store, legacy Store, settings config.InfoDocs, tracer tracing.Tracer) *Engine {
	return &Engine{
		canonical: canonical,
		legacy:    legacy,
		settings:  settings,
		tracer:    tracer,
	}
}

func (e *Engine) Get(ctx context.Context, owner OwnerId) (*InfoDoc, error) {
	return e.canonical.Get(ctx, IdFor(owner))
}

func (e *Engine) RecordWrite(ctx context.Context, owner OwnerId, at time.Time) (*InfoDoc, error) {
	id := IdFor(owner)
	var written *InfoDoc
	err := e.retryOnConflict(ctx, id, func() error {
		doc, err := e.canonical.Get(ctx, id)
		if err != nil {
			if _, notFound := err.(NotFound); !notFound {
				return err
			}
			blank := Blank(owner, at)
			doc = &blank
		}
		doc.RecordWrite(at)
		version, err := e.canonical.Put(ctx, doc)
		if err != nil {
			return err
		}
		doc.Version = version
		written = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func (e *Engine) RecordWrites(ctx context.Context, owners []OwnerId, at time.Time) error {
	b := e.newBackOff(ctx)
	var failed []WriteResult
	pending := distinctIds(owners)
	for round := uint(1); len(pending) > 0; round++ {
		rows, err := e.canonical.BatchGet(ctx, pending)
		if err != nil {
			return withFailures(failed, err)
		}
		docs := make([]InfoDoc, 0, len(rows))
		for _, row := range rows {
			var doc InfoDoc
			if row.Doc != nil {
				doc = *row.Doc
			} else {
				doc = Blank(OwnerIdFrom(row.ID), at)
			}
			doc.RecordWrite(at)
			docs = append(docs, doc)
		}

		results, err := e.canonical.BatchWrite(ctx, docs)
		if err != nil {
			return withFailures(failed, err)
		}
		conflicting, otherFailures := partitionResults(results)
		failed = append(failed, otherFailures...)

		pending = idsOf(conflicting)
		if len(pending) > 0 {
			log.Debug().
				Int("conflicts", len(pending)).
				Int("batch_size", len(docs)).
				Msg("Retrying conflicting replication date writes")
			if err := waitToRetry(ctx, b, pending[0], round); err != nil {
				return withFailures(failed, err)
			}
		}
	}
	if len(failed) > 0 {
		return BulkWriteErrors{Errors: failed}
	}
	return nil
}

func (e *Engine) BulkUpdate(ctx context.Context, docs []InfoDoc) error {
	b := e.newBackOff(ctx)
	var failed []WriteResult
	toWrite := docs
	for round := uint(1); len(toWrite) > 0; round++ {
		results, err := e.canonical.BatchWrite(ctx, toWrite)
		if err != nil {
			return withFailures(failed, err)
		}
		attempted := make(map[Id]InfoDoc)
		for idx, r := range results {
			if r.IsConflict() {
				attempted[toWrite[idx].ID] = toWrite[idx]
			}
		}
		conflicting, otherFailures := partitionResults(results)
		failed = append(failed, otherFailures...)
		if len(conflicting) == 0 {
			break
		}
		conflictingIds := idsOf(conflicting)
		if err := waitToRetry(ctx, b, conflictingIds[0], round); err != nil {
			return withFailures(failed, err)
		}

		freshRows, err := e.canonical.BatchGet(ctx, conflictingIds)
		if err != nil {
			return withFailures(failed, err)
		}
		merged := make([]InfoDoc, 0, len(freshRows))
		for _, row := range freshRows {
			mine := attempted[row.ID]
			if row.Doc == nil {
				// Removed since we read it; put ours back
				mine.Version = metadata.Version{}
				merged = append(merged, mine)
				continue
			}
			// Transitions are never run concurrently for the same owner, so the stored copy
			// can't have newer transition data than ours.
			fresh := *row.Doc
			fresh.Transitions = mine.Transitions
			fresh.MutingHistory = mine.MutingHistory
			merged = append(merged, fresh)
		}
		log.Debug().Int("conflicts", len(merged)).Msg("Retrying merged info docs")
		toWrite = merged
	}
	if len(failed) > 0 {
		return BulkWriteErrors{Errors: failed}
	}
	return nil
}

func (e *Engine) PersistTransitions(ctx context.Context, change *Change) error {
	id := IdFor(change.ID)
	if change.Info == nil {
		return NotResolved{ID: id}
	}
	pending := Transitions{}
	if change.Info.Transitions != nil {
		pending = change.Info.Transitions.Copy()
	}
	return e.retryOnConflict(ctx, id, func() error {
		doc, err := e.canonical.Get(ctx, id)
		if err != nil {
			if _, notFound := err.(NotFound); !notFound {
				return err
			}
			fallback := *change.Info
			// Whatever it was resolved from isn't there any more, so it has to be created
			fallback.Version = metadata.Version{}
			fallback.LegacySourced = false
			doc = &fallback
		}
		doc.Transitions = pending.Copy()
		version, err := e.canonical.Put(ctx, doc)
		if err != nil {
			return err
		}
		doc.Version = version
		change.Info = doc
		return nil
	})
}

func (e *Engine) DeleteForOwner(ctx context.Context, owner OwnerId) error {
	id := IdFor(owner)
	return e.retryOnConflict(ctx, id, func() error {
		doc, err := e.canonical.Get(ctx, id)
		if err != nil {
			if _, notFound := err.(NotFound); notFound {
				return nil
			}
			return err
		}
		doc.Deleted = true
		if _, err := e.canonical.Put(ctx, doc); err != nil {
			if _, notFound := err.(NotFound); notFound {
				return nil
			}
			return err
		}
		log.Debug().Str("info_doc_id", string(id)).Msg("Deleted info doc")
		return nil
	})
}

// withFailures keeps per-doc failures from earlier rounds when a later round has to stop
func withFailures(failed []WriteResult, err error) error {
	if len(failed) == 0 {
		return err
	}
	return BulkWriteErrors{Errors: failed, Aborted: err}
}

// partitionResults splits out version conflicts from other failures. Successes are dropped.
func partitionResults(results []WriteResult) (conflicting []WriteResult, failed []WriteResult) {
	for _, r := range results {
		switch {
		case r.IsOk():
		case r.IsConflict():
			conflicting = append(conflicting, r)
		default:
			failed = append(failed, r)
		}
	}
	return conflicting, failed
}

func idsOf(results []WriteResult) []Id {
	ids := make([]Id, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}

// distinctIds maps owners to their info doc Ids, dropping duplicates but keeping order
func distinctIds(owners []OwnerId) []Id {
	seen := make(map[OwnerId]struct{}, len(owners))
	ids := make([]Id, 0, len(owners))
	for _, o := range owners {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		ids = append(ids, IdFor(o))
	}
	return ids
}
