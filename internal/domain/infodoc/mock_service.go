package infodoc

import (
	"context"
	"time"
)

var MockInfoDoc = InfoDoc{
	ID:          "mock-info",
	OwnerID:     "mock",
	Type:        InfoDocType,
	Transitions: Transitions{},
}

type MockService struct {
	GetCalled                  uint
	GetOverride                func() (*InfoDoc, error)
	RecordWriteCalled          uint
	RecordWriteOverride        func() (*InfoDoc, error)
	RecordWritesCalled         uint
	RecordWritesOverride       func() error
	ResolveCalled              uint
	ResolveOverride            func() (*InfoDoc, error)
	ResolveManyCalled          uint
	ResolveManyOverride        func() ([]InfoDoc, error)
	PersistTransitionsCalled   uint
	PersistTransitionsOverride func() error
	BulkUpdateCalled           uint
	BulkUpdateOverride         func() error
	DeleteForOwnerCalled       uint
	DeleteForOwnerOverride     func() error

	// Last arguments seen
	RecordedOwners []OwnerId
	Changes        []*Change
	BulkUpdated    []InfoDoc
}

func (m *MockService) Get(ctx context.Context, owner OwnerId) (*InfoDoc, error) {
	m.GetCalled++
	if m.GetOverride != nil {
		return m.GetOverride()
	} else {
		return &MockInfoDoc, nil
	}
}

func (m *MockService) RecordWrite(ctx context.Context, owner OwnerId, at time.Time) (*InfoDoc, error) {
	m.RecordWriteCalled++
	m.RecordedOwners = []OwnerId{owner}
	if m.RecordWriteOverride != nil {
		return m.RecordWriteOverride()
	} else {
		return &MockInfoDoc, nil
	}
}

func (m *MockService) RecordWrites(ctx context.Context, owners []OwnerId, at time.Time) error {
	m.RecordWritesCalled++
	m.RecordedOwners = owners
	if m.RecordWritesOverride != nil {
		return m.RecordWritesOverride()
	} else {
		return nil
	}
}

func (m *MockService) Resolve(ctx context.Context, change *Change) (*InfoDoc, error) {
	m.ResolveCalled++
	m.Changes = []*Change{change}
	if m.ResolveOverride != nil {
		return m.ResolveOverride()
	} else {
		info := MockInfoDoc
		info.Transitions = Transitions{}
		change.Info = &info
		return &MockInfoDoc, nil
	}
}

func (m *MockService) ResolveMany(ctx context.Context, changes []*Change) ([]InfoDoc, error) {
	m.ResolveManyCalled++
	m.Changes = changes
	if m.ResolveManyOverride != nil {
		return m.ResolveManyOverride()
	} else {
		docs := make([]InfoDoc, 0, len(changes))
		for _, c := range changes {
			info := Blank(c.ID, time.Time{})
			info.Transitions = Transitions{}
			c.Info = &info
			docs = append(docs, info)
		}
		return docs, nil
	}
}

func (m *MockService) PersistTransitions(ctx context.Context, change *Change) error {
	m.PersistTransitionsCalled++
	m.Changes = []*Change{change}
	if m.PersistTransitionsOverride != nil {
		return m.PersistTransitionsOverride()
	} else {
		return nil
	}
}

func (m *MockService) BulkUpdate(ctx context.Context, docs []InfoDoc) error {
	m.BulkUpdateCalled++
	m.BulkUpdated = docs
	if m.BulkUpdateOverride != nil {
		return m.BulkUpdateOverride()
	} else {
		return nil
	}
}

func (m *MockService) DeleteForOwner(ctx context.Context, owner OwnerId) error {
	m.DeleteForOwnerCalled++
	m.RecordedOwners = []OwnerId{owner}
	if m.DeleteForOwnerOverride != nil {
		return m.DeleteForOwnerOverride()
	} else {
		return nil
	}
}
