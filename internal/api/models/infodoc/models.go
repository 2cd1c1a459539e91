// infodoc holds the API models for info docs and the requests that touch them.
package infodoc

import (
	"time"

	"github.com/lloydmeta/infodocs/internal/api/models/common"
	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
)

// Writes to owner docs that the write-path has seen
type RecordWrites struct {
	OwnerIds []infodoc.OwnerId `json:"owner_ids" binding:"required,min=1,dive,ownerId"`
	// Defaults to now
	At *time.Time `json:"at,omitempty"`
}

type Transition struct {
	LastRev string `json:"last_rev"`
	Seq     string `json:"seq"`
	Ok      bool   `json:"ok"`
}

type OwnerDoc struct {
	Rev string `json:"rev"`
	// Transition data carried on the owner doc from before info docs existed
	Transitions map[string]Transition `json:"transitions,omitempty"`
}

// A change feed entry for an owner doc
type Change struct {
	ID  infodoc.OwnerId `json:"id" binding:"required,ownerId"`
	Seq string          `json:"seq"`
	Doc *OwnerDoc       `json:"doc,omitempty"`
}

type Resolutions struct {
	Changes []Change `json:"changes" binding:"required,min=1,dive"`
}

// Outcome of running a transition
type Outcome struct {
	Transition string `json:"transition" binding:"required"`
	Ok         bool   `json:"ok"`
}

// TransitionRun holds the outcomes of running transitions against a single change of an owner doc
type TransitionRun struct {
	Seq         string                `json:"seq"`
	Rev         string                `json:"rev"`
	Transitions map[string]Transition `json:"transitions,omitempty"`
	Outcomes    []Outcome             `json:"outcomes" binding:"required,dive"`
}

// ChangeTransitionRun is a TransitionRun for a given owner doc
type ChangeTransitionRun struct {
	ID          infodoc.OwnerId       `json:"id" binding:"required,ownerId"`
	Seq         string                `json:"seq"`
	Rev         string                `json:"rev"`
	Transitions map[string]Transition `json:"transitions,omitempty"`
	Outcomes    []Outcome             `json:"outcomes" binding:"required,dive"`
}

type TransitionRuns struct {
	Changes []ChangeTransitionRun `json:"changes" binding:"required,min=1,dive"`
}

type InfoDoc struct {
	ID      infodoc.Id      `json:"id" binding:"required"`
	OwnerID infodoc.OwnerId `json:"doc_id" binding:"required"`
	Type    string          `json:"type" binding:"required"`
	// Left out when unknown
	InitialReplicationDate *time.Time             `json:"initial_replication_date,omitempty"`
	LatestReplicationDate  *time.Time             `json:"latest_replication_date,omitempty"`
	Transitions            map[string]Transition  `json:"transitions"`
	MutingHistory          *infodoc.MutingHistory `json:"muting_history,omitempty"`
	Version                common.Version         `json:"version"`
}

func (c *Change) ToDomainChange() infodoc.Change {
	change := infodoc.Change{
		ID:  c.ID,
		Seq: c.Seq,
	}
	if c.Doc != nil {
		change.Doc = &infodoc.OwnerDoc{
			Rev:         c.Doc.Rev,
			Transitions: toDomainTransitions(c.Doc.Transitions),
		}
	}
	return change
}

func (r *TransitionRun) ToDomainChange(owner infodoc.OwnerId) infodoc.Change {
	return infodoc.Change{
		ID:  owner,
		Seq: r.Seq,
		Doc: &infodoc.OwnerDoc{
			Rev:         r.Rev,
			Transitions: toDomainTransitions(r.Transitions),
		},
	}
}

func (r *ChangeTransitionRun) ToTransitionRun() TransitionRun {
	return TransitionRun{
		Seq:         r.Seq,
		Rev:         r.Rev,
		Transitions: r.Transitions,
		Outcomes:    r.Outcomes,
	}
}

func FromDomainInfoDoc(doc *infodoc.InfoDoc) InfoDoc {
	var transitions map[string]Transition
	if doc.Transitions != nil {
		transitions = make(map[string]Transition, len(doc.Transitions))
		for name, t := range doc.Transitions {
			transitions[name] = Transition{
				LastRev: t.LastRev,
				Seq:     t.Seq,
				Ok:      t.Ok,
			}
		}
	}
	return InfoDoc{
		ID:                     doc.ID,
		OwnerID:                doc.OwnerID,
		Type:                   doc.Type,
		InitialReplicationDate: dateOrNil(doc.InitialReplicationDate),
		LatestReplicationDate:  dateOrNil(doc.LatestReplicationDate),
		Transitions:            transitions,
		MutingHistory:          doc.MutingHistory,
		Version:                common.FromDomainVersion(doc.Version),
	}
}

func toDomainTransitions(ts map[string]Transition) infodoc.Transitions {
	if ts == nil {
		return nil
	}
	domainTransitions := make(infodoc.Transitions, len(ts))
	for name, t := range ts {
		domainTransitions[name] = infodoc.Transition{
			LastRev: t.LastRev,
			Seq:     t.Seq,
			Ok:      t.Ok,
		}
	}
	return domainTransitions
}

func dateOrNil(d infodoc.ReplicationDate) *time.Time {
	if d.IsUnknown() {
		return nil
	}
	t := time.Time(d)
	return &t
}
