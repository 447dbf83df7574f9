package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mealsync/mealsync/internal/domain"
)

// Store is an in-memory implementation of the storage interface for
// testing. Attendance entries are cloned on the way in and out so a
// caller holding a pointer cannot mutate stored state without an
// explicit upsert, matching the document-write semantics of the SQL
// store.
type Store struct {
	mu sync.RWMutex

	groups       map[string]*domain.FamilyGroup     // key: id
	members      map[string]*domain.FamilyMember    // key: id
	attendance   map[string]*domain.AttendanceEntry // key: familyID|date|mealType
	joinRequests map[string]*domain.JoinRequest     // key: id
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		groups:       make(map[string]*domain.FamilyGroup),
		members:      make(map[string]*domain.FamilyMember),
		attendance:   make(map[string]*domain.AttendanceEntry),
		joinRequests: make(map[string]*domain.JoinRequest),
	}
}

func (s *Store) Close() error { return nil }

func entryKey(familyID, date string, meal domain.MealType) string {
	return familyID + "|" + date + "|" + string(meal)
}

// ============================================
// Family groups
// ============================================

func (s *Store) CreateGroup(ctx context.Context, g *domain.FamilyGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.groups {
		if existing.JoinCode == g.JoinCode {
			return domain.ErrAlreadyExists
		}
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.FamilyGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, exists := s.groups[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) GetGroupByJoinCode(ctx context.Context, code string) (*domain.FamilyGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.JoinCode == code {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) UpdateGroupMemberCount(ctx context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.groups[id]
	if !exists {
		return domain.ErrNotFound
	}
	g.MemberCount = count
	return nil
}

func (s *Store) UpdateGroupSettings(ctx context.Context, id string, settings domain.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.groups[id]
	if !exists {
		return domain.ErrNotFound
	}
	g.Settings = settings
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.groups, id)
	return nil
}

// ============================================
// Family members
// ============================================

func (s *Store) CreateMember(ctx context.Context, m *domain.FamilyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[m.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, exists := s.members[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMembers(ctx context.Context, familyID string) ([]*domain.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]*domain.FamilyMember, 0)
	for _, m := range s.members {
		if m.FamilyID == familyID {
			cp := *m
			members = append(members, &cp)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

func (s *Store) UpdateMember(ctx context.Context, m *domain.FamilyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[m.ID]; !exists {
		return domain.ErrNotFound
	}
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.members, id)
	return nil
}

func (s *Store) CountMembers(ctx context.Context, familyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.members {
		if m.FamilyID == familyID {
			count++
		}
	}
	return count, nil
}

// ============================================
// Meal attendance
// ============================================

func (s *Store) UpsertAttendance(ctx context.Context, e *domain.AttendanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[entryKey(e.FamilyID, e.Date, e.MealType)] = e.Clone()
	return nil
}

func (s *Store) GetAttendance(ctx context.Context, familyID, date string, meal domain.MealType) (*domain.AttendanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.attendance[entryKey(familyID, date, meal)]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) ListAttendance(ctx context.Context, familyID, date string) ([]*domain.AttendanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*domain.AttendanceEntry, 0)
	for key, e := range s.attendance {
		if !strings.HasPrefix(key, familyID+"|") {
			continue
		}
		if date != "" && e.Date != date {
			continue
		}
		entries = append(entries, e.Clone())
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date == entries[j].Date {
			return entries[i].MealType < entries[j].MealType
		}
		return entries[i].Date < entries[j].Date
	})
	return entries, nil
}

func (s *Store) DeleteExpiredAttendance(ctx context.Context, familyID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.attendance {
		if e.FamilyID != familyID {
			continue
		}
		if e.Deadline != nil && e.Deadline.Before(cutoff) {
			delete(s.attendance, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) DeleteAttendanceByDate(ctx context.Context, familyID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.attendance {
		if e.FamilyID == familyID && e.Date == date {
			delete(s.attendance, key)
			removed++
		}
	}
	return removed, nil
}

// ============================================
// Join requests
// ============================================

func (s *Store) CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.joinRequests[jr.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *jr
	s.joinRequests[jr.ID] = &cp
	return nil
}

func (s *Store) GetJoinRequest(ctx context.Context, id string) (*domain.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jr, exists := s.joinRequests[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	cp := *jr
	return &cp, nil
}

func (s *Store) ListJoinRequests(ctx context.Context, groupID string) ([]*domain.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requests := make([]*domain.JoinRequest, 0)
	for _, jr := range s.joinRequests {
		if jr.GroupID == groupID {
			cp := *jr
			requests = append(requests, &cp)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

func (s *Store) UpdateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.joinRequests[jr.ID]; !exists {
		return domain.ErrNotFound
	}
	cp := *jr
	s.joinRequests[jr.ID] = &cp
	return nil
}
