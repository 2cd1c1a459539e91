package infodoc

import (
	"fmt"
	"strings"
	"time"

	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

// InfoDocType is the discriminator stored on every info doc
const InfoDocType = "info"

const idSuffix = "-info"

// Stores cap document ids at 512 bytes; the derived id needs room for the suffix
const maxOwnerIdBytes = 512 - len(idSuffix)

type JsonObj map[string]interface{}

// Id of an info doc. Always derived from an OwnerId.
type Id string

// OwnerId is the id of the primary document an info doc describes
type OwnerId string

// IdFor returns the info doc Id for the given owner
func IdFor(owner OwnerId) Id {
	return Id(string(owner) + idSuffix)
}

// OwnerIdFrom is the inverse of IdFor
func OwnerIdFrom(id Id) OwnerId {
	return OwnerId(strings.TrimSuffix(string(id), idSuffix))
}

// OwnerIdFromString returns an OwnerId if the string is usable as one
func OwnerIdFromString(s string) (*OwnerId, error) {
	if len(strings.TrimSpace(s)) == 0 {
		return nil, InvalidOwnerId{Value: s, Reason: "must not be blank"}
	}
	if len(s) > maxOwnerIdBytes {
		return nil, InvalidOwnerId{Value: s, Reason: fmt.Sprintf("must be at most %d bytes", maxOwnerIdBytes)}
	}
	o := OwnerId(s)
	return &o, nil
}

type InvalidOwnerId struct {
	Value  string
	Reason string
}

func (e InvalidOwnerId) Error() string {
	return fmt.Sprintf("Invalid owner id [%v]: %s", e.Value, e.Reason)
}

// ReplicationDate is when a write to the owner doc was observed. The zero value
// means the date is unknown.
type ReplicationDate time.Time

func (d ReplicationDate) IsUnknown() bool {
	return time.Time(d).IsZero()
}

// Transition records the outcome of the last run of a named transition
type Transition struct {
	// Revision of the owner doc the transition ran against
	LastRev string
	// Change feed position
	Seq string
	Ok  bool
}

// Transitions by name. A nil Transitions means the processing engine has not seen the
// owner doc yet, which is different from an empty one.
type Transitions map[string]Transition

// Copy returns a shallow copy, preserving nil-ness
func (t Transitions) Copy() Transitions {
	if t == nil {
		return nil
	}
	c := make(Transitions, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// MutingHistory is free-form state accumulated by the processing engine
type MutingHistory JsonObj

// InfoDoc holds replication and processing metadata for a single owner document.
//
// The write-path owns the replication dates; the processing engine owns Transitions
// and MutingHistory.
type InfoDoc struct {
	ID                     Id
	OwnerID                OwnerId
	Type                   string
	InitialReplicationDate ReplicationDate
	LatestReplicationDate  ReplicationDate
	Transitions            Transitions
	MutingHistory          *MutingHistory
	Version                metadata.Version

	// Set when the doc was adopted from the legacy store during resolution. Not persisted.
	LegacySourced bool
	// Writing a doc with Deleted set removes it from the store
	Deleted bool
}

// Blank returns a new, unpersisted InfoDoc for the given owner. Pass a zero time if the
// replication date isn't known.
func Blank(owner OwnerId, knownReplicationDate time.Time) InfoDoc {
	return InfoDoc{
		ID:                     IdFor(owner),
		OwnerID:                owner,
		Type:                   InfoDocType,
		InitialReplicationDate: ReplicationDate(knownReplicationDate),
		LatestReplicationDate:  ReplicationDate(knownReplicationDate),
	}
}

// IsPersisted returns true if the doc carries a revision from a store
func (d *InfoDoc) IsPersisted() bool {
	return !d.Version.IsZero()
}

// RecordWrite marks a write of the owner doc at the given time.
//
// The initial replication date is only ever filled in once.
func (d *InfoDoc) RecordWrite(at time.Time) {
	if d.InitialReplicationDate.IsUnknown() {
		d.InitialReplicationDate = ReplicationDate(at)
	}
	d.LatestReplicationDate = ReplicationDate(at)
}

// OwnerDoc is the part of the owner document the engine cares about
type OwnerDoc struct {
	Rev string
	// Transition data carried on the owner doc itself, from before info docs existed
	Transitions Transitions
}

// Change is a change feed entry for an owner doc, as seen by the processing engine
type Change struct {
	ID  OwnerId
	Seq string
	Doc *OwnerDoc
	// Pending info doc state. Filled in by resolution and mutated by StampOutcome.
	Info *InfoDoc
}

// StampOutcome records the outcome of running the named transition against the change, in memory only.
func StampOutcome(change *Change, transition string, ok bool) {
	if change.Info == nil {
		blank := Blank(change.ID, time.Time{})
		change.Info = &blank
	}
	if change.Info.Transitions == nil {
		change.Info.Transitions = Transitions{}
	}
	var lastRev string
	if change.Doc != nil {
		lastRev = change.Doc.Rev
	}
	change.Info.Transitions[transition] = Transition{
		LastRev: lastRev,
		Seq:     change.Seq,
		Ok:      ok,
	}
}
