package infodoc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

const retireLegacyTxName = "infodoc-retire-legacy"

// splitRows sorts BatchGet rows by what they tell us about each Id
type splitRows struct {
	valid   []*InfoDoc
	missing []Id
	// A doc without transitions may just have been created by the write-path before the
	// processing engine got to it, in which case a legacy doc might still hold its transitions.
	missingTransitions []*InfoDoc
}

func split(rows []Row) splitRows {
	var s splitRows
	for _, row := range rows {
		switch {
		case row.Doc == nil:
			s.missing = append(s.missing, row.ID)
		case row.Doc.Transitions == nil:
			s.missingTransitions = append(s.missingTransitions, row.Doc)
		default:
			s.valid = append(s.valid, row.Doc)
		}
	}
	return s
}

func (e *Engine) Resolve(ctx context.Context, change *Change) (*InfoDoc, error) {
	docs, err := e.ResolveMany(ctx, []*Change{change})
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

func (e *Engine) ResolveMany(ctx context.Context, changes []*Change) ([]InfoDoc, error) {
	if len(changes) == 0 {
		return []InfoDoc{}, nil
	}
	changesByOwner := make(map[OwnerId]*Change, len(changes))
	ids := make([]Id, 0, len(changes))
	for _, c := range changes {
		if _, seen := changesByOwner[c.ID]; !seen {
			changesByOwner[c.ID] = c
			ids = append(ids, IdFor(c.ID))
		}
	}

	// Canonical store first: that's where info docs should live
	canonicalRows, err := e.canonical.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	canonical := split(canonicalRows)

	resolved := make(map[Id]*InfoDoc, len(ids))
	for _, d := range canonical.valid {
		resolved[d.ID] = d
	}
	canonicalMissingTransitions := make(map[Id]*InfoDoc, len(canonical.missingTransitions))
	lookInLegacy := make([]Id, 0, len(canonical.missing)+len(canonical.missingTransitions))
	for _, d := range canonical.missingTransitions {
		resolved[d.ID] = d
		canonicalMissingTransitions[d.ID] = d
		lookInLegacy = append(lookInLegacy, d.ID)
	}
	lookInLegacy = append(lookInLegacy, canonical.missing...)

	var toStore []*InfoDoc
	var toRetire []InfoDoc
	if len(lookInLegacy) > 0 {
		legacyRows, err := e.legacy.BatchGet(ctx, lookInLegacy)
		if err != nil {
			return nil, err
		}
		legacy := split(legacyRows)
		// Nothing ambiguous about a legacy doc without transitions
		legacyFound := append(legacy.valid, legacy.missingTransitions...)

		for _, legacyDoc := range legacyFound {
			if canonicalDoc, ok := canonicalMissingTransitions[legacyDoc.ID]; ok {
				// The canonical copy and its version win; it only lacks the transition history
				canonicalDoc.Transitions = legacyDoc.Transitions.Copy()
				toStore = append(toStore, canonicalDoc)
			} else {
				adopted := *legacyDoc
				adopted.Version = metadata.Version{}
				adopted.Transitions = legacyDoc.Transitions.Copy()
				adopted.LegacySourced = true
				resolved[adopted.ID] = &adopted
				toStore = append(toStore, &adopted)
			}
			tombstone := *legacyDoc
			tombstone.Deleted = true
			toRetire = append(toRetire, tombstone)
		}

		// Not in the legacy store either: fall back to whatever the owner doc carries
		for _, id := range legacy.missing {
			doc, collected := resolved[id]
			if !collected {
				blank := Blank(OwnerIdFrom(id), time.Time{})
				doc = &blank
				resolved[id] = doc
			}
			change := changesByOwner[OwnerIdFrom(id)]
			if change != nil && change.Doc != nil && change.Doc.Transitions != nil {
				doc.Transitions = change.Doc.Transitions.Copy()
			} else {
				doc.Transitions = Transitions{}
			}
			toStore = append(toStore, doc)
		}
	}

	for _, doc := range resolved {
		if doc.Transitions == nil {
			doc.Transitions = Transitions{}
		}
	}

	if len(toStore) > 0 {
		if err := e.storeResolved(ctx, toStore, toRetire); err != nil {
			return nil, err
		}
	}

	docs := make([]InfoDoc, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, *resolved[id])
	}
	for _, c := range changes {
		info := *resolved[IdFor(c.ID)]
		info.Transitions = info.Transitions.Copy()
		c.Info = &info
	}
	return docs, nil
}

// storeResolved writes created and migrated docs to the canonical store, updating their versions.
// Legacy copies are only retired once their canonical replacement is stored.
//
// No conflict retries here: resolution runs against freshly observed changes, so a failure is
// treated as fatal for the whole call.
func (e *Engine) storeResolved(ctx context.Context, toStore []*InfoDoc, toRetire []InfoDoc) error {
	docs := make([]InfoDoc, 0, len(toStore))
	for _, d := range toStore {
		docs = append(docs, *d)
	}
	results, err := e.canonical.BatchWrite(ctx, docs)
	if err != nil {
		return err
	}

	stored := make(map[Id]struct{}, len(results))
	var firstFailure error
	for idx, r := range results {
		if !r.IsOk() {
			if firstFailure == nil {
				firstFailure = MigrationFailed{ID: docs[idx].ID, Underlying: r.Err}
			}
			continue
		}
		toStore[idx].Version = r.Version
		stored[docs[idx].ID] = struct{}{}
	}

	retirable := make([]InfoDoc, 0, len(toRetire))
	for _, d := range toRetire {
		if _, ok := stored[d.ID]; ok {
			retirable = append(retirable, d)
		}
	}
	if len(retirable) > 0 {
		e.retireLegacy(retirable)
	}
	return firstFailure
}

// retireLegacy deletes migrated docs from the legacy store in the background. Nobody waits on
// this; failures are only logged.
func (e *Engine) retireLegacy(tombstones []InfoDoc) {
	go func() {
		tx := e.tracer.BackgroundTx(retireLegacyTxName)
		defer tx.End()
		results, err := e.legacy.BatchWrite(tx.Context(), tombstones)
		if err != nil {
			log.Error().Err(err).Int("count", len(tombstones)).Msg("Failed to retire migrated legacy info docs")
			return
		}
		for _, r := range results {
			if !r.IsOk() {
				log.Warn().Err(r.Err).Str("info_doc_id", string(r.ID)).Msg("Failed to retire migrated legacy info doc")
			}
		}
		log.Debug().Int("count", len(tombstones)).Msg("Retired migrated legacy info docs")
	}()
}
