// persisted holds the storage-side shape of info docs, shared by every store that keeps them
// as JSON.
package persisted

import (
	"encoding/json"
	"time"

	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

// Persistence doc structures based entirely on basic types for ease of guaranteeing serdes.

type jsonObjMap map[string]interface{}

type Transition struct {
	LastRev string `json:"last_rev"`
	Seq     string `json:"seq"`
	Ok      bool   `json:"ok"`
}

type InfoDoc struct {
	Type  string `json:"type"`
	DocId string `json:"doc_id"`
	// Unknown dates are left out entirely
	InitialReplicationDate *time.Time `json:"initial_replication_date,omitempty"`
	LatestReplicationDate  *time.Time `json:"latest_replication_date,omitempty"`
	// A pointer so that an empty map is still written out, but a nil one is not
	Transitions   *map[string]Transition `json:"transitions,omitempty"`
	MutingHistory *jsonObjMap            `json:"muting_history,omitempty"`
}

func FromDomain(doc *infodoc.InfoDoc) InfoDoc {
	p := InfoDoc{
		Type:                   infodoc.InfoDocType,
		DocId:                  string(doc.OwnerID),
		InitialReplicationDate: dateOrNil(doc.InitialReplicationDate),
		LatestReplicationDate:  dateOrNil(doc.LatestReplicationDate),
		MutingHistory:          (*jsonObjMap)(doc.MutingHistory),
	}
	if doc.OwnerID == "" {
		p.DocId = string(infodoc.OwnerIdFrom(doc.ID))
	}
	if doc.Transitions != nil {
		transitions := make(map[string]Transition, len(doc.Transitions))
		for name, t := range doc.Transitions {
			transitions[name] = Transition{
				LastRev: t.LastRev,
				Seq:     t.Seq,
				Ok:      t.Ok,
			}
		}
		p.Transitions = &transitions
	}
	return p
}

// ToDomain turns the persisted data stored under id into an InfoDoc, failing with
// InvalidPersistedData if what's stored isn't an info doc.
func (p *InfoDoc) ToDomain(id infodoc.Id, version metadata.Version) (*infodoc.InfoDoc, error) {
	if p.Type != infodoc.InfoDocType {
		return nil, invalid(id, p)
	}
	ownerId := infodoc.OwnerId(p.DocId)
	if ownerId == "" {
		ownerId = infodoc.OwnerIdFrom(id)
	}
	doc := infodoc.InfoDoc{
		ID:                     id,
		OwnerID:                ownerId,
		Type:                   p.Type,
		InitialReplicationDate: dateOrUnknown(p.InitialReplicationDate),
		LatestReplicationDate:  dateOrUnknown(p.LatestReplicationDate),
		MutingHistory:          (*infodoc.MutingHistory)(p.MutingHistory),
		Version:                version,
	}
	if p.Transitions != nil {
		doc.Transitions = make(infodoc.Transitions, len(*p.Transitions))
		for name, t := range *p.Transitions {
			doc.Transitions[name] = infodoc.Transition{
				LastRev: t.LastRev,
				Seq:     t.Seq,
				Ok:      t.Ok,
			}
		}
	}
	return &doc, nil
}

func invalid(id infodoc.Id, p *InfoDoc) infodoc.InvalidPersistedData {
	asBytes, err := json.Marshal(p)
	if err != nil {
		return infodoc.InvalidPersistedData{ID: id, PersistedData: err.Error()}
	}
	return infodoc.InvalidPersistedData{ID: id, PersistedData: string(asBytes)}
}

func dateOrNil(d infodoc.ReplicationDate) *time.Time {
	if d.IsUnknown() {
		return nil
	}
	t := time.Time(d).UTC()
	return &t
}

func dateOrUnknown(t *time.Time) infodoc.ReplicationDate {
	if t == nil {
		return infodoc.ReplicationDate{}
	}
	return infodoc.ReplicationDate(*t)
}
