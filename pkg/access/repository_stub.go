package access

import (
	"context"
	"slices"
	"sync"
)

type MemberRepositoryStub struct {
	mu      sync.Mutex
	members map[Role][]Member
	// Err, when set, is returned by every call.
	Err error
}

func NewMemberRepositoryStub() *MemberRepositoryStub {
	return &MemberRepositoryStub{members: make(map[Role][]Member)}
}

func (s *MemberRepositoryStub) FindByRole(ctx context.Context, role Role) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return slices.Clone(s.members[role]), nil
}

func (s *MemberRepositoryStub) Upsert(ctx context.Context, role Role, member Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i, m := range s.members[role] {
		if m.ID == member.ID && m.Area == member.Area {
			s.members[role][i].Name = member.Name
			return nil
		}
	}
	s.members[role] = append(s.members[role], member)
	return nil
}

func (s *MemberRepositoryStub) Remove(ctx context.Context, role Role, id int64, area string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	before := len(s.members[role])
	s.members[role] = slices.DeleteFunc(s.members[role], func(m Member) bool {
		return m.ID == id && m.Area == area
	})
	return len(s.members[role]) < before, nil
}
