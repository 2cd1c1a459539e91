package infodoc

import (
	"context"
	"sync"

	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

// MemStore is an in-memory Store with the same versioning rules as the real ones.
//
// The On* hooks run before a write is applied and outside of the store's lock, so they can
// call Seed to act as a concurrent writer.
type MemStore struct {
	GetCalled        uint
	PutCalled        uint
	BatchGetCalled   uint
	BatchWriteCalled uint
	// Every batch written, in order
	BatchWrites [][]InfoDoc

	OnPut        func(s *MemStore, doc *InfoDoc)
	OnBatchWrite func(s *MemStore, docs []InfoDoc)
	// Errors to fail writes of specific Ids with
	FailWrites map[Id]error
	// Returned from the whole call, if set
	GetErr        error
	BatchGetErr   error
	BatchWriteErr error

	docs   map[Id]InfoDoc
	seqNum uint64
	mu     sync.Mutex
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[Id]InfoDoc)}
}

// Seed stores the doc regardless of its version, as some other writer would, and returns it
// with its new version.
func (s *MemStore) Seed(doc InfoDoc) InfoDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(doc)
}

// Snapshot returns what's stored for the Id
func (s *MemStore) Snapshot(id Id) (InfoDoc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if ok {
		doc = copyDoc(doc)
	}
	return doc, ok
}

func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *MemStore) Get(ctx context.Context, id Id) (*InfoDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalled++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, NotFound{ID: id}
	}
	doc = copyDoc(doc)
	return &doc, nil
}

func (s *MemStore) Put(ctx context.Context, doc *InfoDoc) (metadata.Version, error) {
	if s.OnPut != nil {
		s.OnPut(s, doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalled++
	return s.write(*doc)
}

func (s *MemStore) BatchGet(ctx context.Context, ids []Id) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchGetCalled++
	if s.BatchGetErr != nil {
		return nil, s.BatchGetErr
	}
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		row := Row{ID: id}
		if doc, ok := s.docs[id]; ok {
			doc = copyDoc(doc)
			row.Doc = &doc
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *MemStore) BatchWrite(ctx context.Context, docs []InfoDoc) ([]WriteResult, error) {
	if s.OnBatchWrite != nil {
		s.OnBatchWrite(s, docs)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchWriteCalled++
	if s.BatchWriteErr != nil {
		return nil, s.BatchWriteErr
	}
	written := make([]InfoDoc, 0, len(docs))
	results := make([]WriteResult, 0, len(docs))
	for _, doc := range docs {
		written = append(written, copyDoc(doc))
		version, err := s.write(doc)
		results = append(results, WriteResult{ID: doc.ID, Version: version, Err: err})
	}
	s.BatchWrites = append(s.BatchWrites, written)
	return results, nil
}

// write applies the versioning rules. Must hold the lock.
func (s *MemStore) write(doc InfoDoc) (metadata.Version, error) {
	if err, ok := s.FailWrites[doc.ID]; ok {
		return metadata.Version{}, err
	}
	existing, exists := s.docs[doc.ID]
	switch {
	case doc.Deleted && !exists:
		return metadata.Version{}, NotFound{ID: doc.ID}
	case doc.Version.IsZero() && exists:
		return metadata.Version{}, InvalidVersion{ID: doc.ID}
	case !doc.Version.IsZero() && !exists:
		return metadata.Version{}, InvalidVersion{ID: doc.ID}
	case exists && existing.Version != doc.Version:
		return metadata.Version{}, InvalidVersion{ID: doc.ID}
	}
	if doc.Deleted {
		delete(s.docs, doc.ID)
		s.seqNum++
		return metadata.Version{SeqNum: metadata.SeqNum(s.seqNum), PrimaryTerm: 1}, nil
	}
	return s.store(doc).Version, nil
}

// store unconditionally. Must hold the lock.
func (s *MemStore) store(doc InfoDoc) InfoDoc {
	s.seqNum++
	doc = copyDoc(doc)
	doc.Version = metadata.Version{SeqNum: metadata.SeqNum(s.seqNum), PrimaryTerm: 1}
	// Neither of these survive a round trip through a real store
	doc.LegacySourced = false
	doc.Deleted = false
	s.docs[doc.ID] = doc
	return copyDoc(doc)
}

func copyDoc(doc InfoDoc) InfoDoc {
	doc.Transitions = doc.Transitions.Copy()
	if doc.MutingHistory != nil {
		h := make(MutingHistory, len(*doc.MutingHistory))
		for k, v := range *doc.MutingHistory {
			h[k] = v
		}
		doc.MutingHistory = &h
	}
	return doc
}
