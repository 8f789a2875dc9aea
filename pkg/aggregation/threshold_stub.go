package aggregation

import (
	"context"
	"sync"
)

type ThresholdRepositoryStub struct {
	mu     sync.Mutex
	limits map[string]Limit
	teams  map[string]TeamThreshold
	Err    error
}

func NewThresholdRepositoryStub() *ThresholdRepositoryStub {
	return &ThresholdRepositoryStub{
		limits: make(map[string]Limit),
		teams:  make(map[string]TeamThreshold),
	}
}

func (s *ThresholdRepositoryStub) FindLimit(ctx context.Context, key string) (Limit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Limit{}, s.Err
	}
	limit, ok := s.limits[key]
	if !ok {
		return Limit{}, ErrLimitNotFound
	}
	return limit, nil
}

func (s *ThresholdRepositoryStub) UpsertLimit(ctx context.Context, limit Limit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.limits[limit.Key] = limit
	return nil
}

func (s *ThresholdRepositoryStub) FindTeamThreshold(ctx context.Context, area string, team string) (TeamThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return TeamThreshold{}, s.Err
	}
	threshold, ok := s.teams[area+"/"+team]
	if !ok {
		return TeamThreshold{}, ErrTeamThresholdNotFound
	}
	return threshold, nil
}

func (s *ThresholdRepositoryStub) UpsertTeamThreshold(ctx context.Context, threshold TeamThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.teams[threshold.Area+"/"+threshold.Team] = threshold
	return nil
}
