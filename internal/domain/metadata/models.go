// metadata contains models that hold data about data. Elasticsearch is the canonical store,
// so the revision token is modelled directly on its seq number and primary term. Other stores
// map their own revision counters onto the same shape.
package metadata

type SeqNum uint64
type PrimaryTerm uint64

// Version is the opaque revision token used for optimistic concurrency. A zero Version
// belongs to something that has never been persisted.
type Version struct {
	SeqNum      SeqNum
	PrimaryTerm PrimaryTerm
}

// IsZero returns true if this Version was never assigned by a store.
//
// Primary terms start at 1 in Elasticsearch, so a zero primary term is never a real version.
func (v Version) IsZero() bool {
	return v.PrimaryTerm == 0
}
