package confirmation

import (
	"context"
	"sync"
)

type RepositoryStub struct {
	mu      sync.Mutex
	records map[Kind]map[string]Record
	// FailInsert makes every Insert return this error when set.
	FailInsert error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{records: make(map[Kind]map[string]Record)}
}

func (s *RepositoryStub) Insert(ctx context.Context, kind Kind, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	if !kind.Valid() {
		return ErrUnknownKind
	}
	if s.records[kind] == nil {
		s.records[kind] = make(map[string]Record)
	}
	s.records[kind][record.ID] = record
	return nil
}

func (s *RepositoryStub) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[kind][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *RepositoryStub) Take(ctx context.Context, kind Kind, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[kind][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	delete(s.records[kind], id)
	return record, nil
}

func (s *RepositoryStub) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[kind][id]; !ok {
		return false, nil
	}
	delete(s.records[kind], id)
	return true, nil
}

func (s *RepositoryStub) DeleteOlderThan(ctx context.Context, kind Kind, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, record := range s.records[kind] {
		if record.CreatedAt < cutoff {
			delete(s.records[kind], id)
			deleted++
		}
	}
	return deleted, nil
}
