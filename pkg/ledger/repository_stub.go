package ledger

import (
	"context"
	"errors"
	"slices"
	"sync"
)

type RepositoryStub struct {
	mu      sync.Mutex
	entries []Entry
	// Err, when set, is returned by every call.
	Err error
	// FailInsertAfter, when positive, makes every insert after that many successful ones fail.
	FailInsertAfter int
	inserted        int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{}
}

func (s *RepositoryStub) Insert(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.FailInsertAfter > 0 && s.inserted >= s.FailInsertAfter {
		return errors.New("insert refused")
	}
	s.inserted++
	s.entries = append(s.entries, entry)
	return nil
}

func (s *RepositoryStub) MarkDone(ctx context.Context, area string, budgetID string, now int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	updated := make([]Entry, 0)
	for i, e := range s.entries {
		if e.Area == area && e.BudgetID == budgetID && e.Status == StatusPending {
			s.entries[i].Status = StatusDone
			s.entries[i].EndTime = max(now, e.Timestamp)
			updated = append(updated, s.entries[i])
		}
	}
	return updated, nil
}

func (s *RepositoryStub) UpdateFields(ctx context.Context, area string, id string, update FieldUpdate) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Entry{}, s.Err
	}
	for i, e := range s.entries {
		if e.Area != area || e.ID != id {
			continue
		}
		if update.Team != nil {
			e.Team = *update.Team
		}
		if update.ContractCode != nil {
			e.ContractCode = *update.ContractCode
		}
		if update.GroupName != nil {
			e.GroupName = *update.GroupName
		}
		if update.Assistant != nil {
			e.Assistant = *update.Assistant
		}
		if update.Note != nil {
			e.Note = *update.Note
		}
		if update.Timestamp != nil {
			e.Timestamp = *update.Timestamp
		}
		if update.Amount != nil {
			e.Amount = *update.Amount
		}
		s.entries[i] = e
		return e, nil
	}
	return Entry{}, ErrEntryNotFound
}

func (s *RepositoryStub) FindByID(ctx context.Context, area string, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Entry{}, s.Err
	}
	for _, e := range s.entries {
		if e.Area == area && e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (s *RepositoryStub) FindByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.Area == area && e.BudgetID == budgetID })
}

func (s *RepositoryStub) FindPendingByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error) {
	return s.filter(func(e Entry) bool {
		return e.Area == area && e.BudgetID == budgetID && e.Status == StatusPending
	})
}

func (s *RepositoryStub) FindAll(ctx context.Context, area string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.Area == area })
}

func (s *RepositoryStub) ListBudgetIDs(ctx context.Context, area string) ([]string, error) {
	entries, err := s.filter(func(e Entry) bool { return e.Area == area })
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for _, e := range entries {
		if !slices.Contains(ids, e.BudgetID) {
			ids = append(ids, e.BudgetID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *RepositoryStub) DeleteByBudgetID(ctx context.Context, area string, budgetID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.Area == area && e.BudgetID == budgetID })
	return int64(before - len(s.entries)), nil
}

func (s *RepositoryStub) SumByContractCode(ctx context.Context, area string, team string, codes []string, from, to int64) (map[string]int64, error) {
	entries, err := s.filter(func(e Entry) bool {
		return e.Area == area && e.Team == team && slices.Contains(codes, e.ContractCode) &&
			e.Timestamp >= from && e.Timestamp <= to
	})
	if err != nil {
		return nil, err
	}
	sums := make(map[string]int64)
	for _, e := range entries {
		sums[e.ContractCode] += e.Amount
	}
	return sums, nil
}

func (s *RepositoryStub) SumByTeam(ctx context.Context, area string, team string, from, to int64) (int64, error) {
	entries, err := s.filter(func(e Entry) bool {
		return e.Area == area && e.Team == team && e.Timestamp >= from && e.Timestamp <= to
	})
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum, nil
}

func (s *RepositoryStub) filter(keep func(Entry) bool) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	result := make([]Entry, 0)
	for _, e := range s.entries {
		if keep(e) {
			result = append(result, e)
		}
	}
	return result, nil
}
