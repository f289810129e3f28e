// Package memory holds map-backed implementations of the repository interfaces.
// They back the service when no Postgres DSN is configured, and the tests.
// Lookups that miss return pgx.ErrNoRows, like the Postgres repositories.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/repository"
	"github.com/helpdesk-sla/sla-service/internal/sla"
)

// TicketStore is an in-memory repository.TicketRepository.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewTicketStore builds a store seeded with the given tickets.
func NewTicketStore(tickets ...domain.Ticket) *TicketStore {
	s := &TicketStore{tickets: make(map[string]domain.Ticket)}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

// Put inserts or replaces a ticket.
func (s *TicketStore) Put(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

func (s *TicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (s *TicketStore) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.RLock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if filter.DepartmentID != nil && t.DepartmentID != *filter.DepartmentID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !slices.Contains(filter.Priorities, t.Priority) {
			continue
		}
		result = append(result, t)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DepartmentStore is an in-memory repository.DepartmentRepository.
type DepartmentStore struct {
	mu    sync.RWMutex
	depts map[string]domain.Department
}

// NewDepartmentStore builds a store seeded with the given departments.
func NewDepartmentStore(depts ...domain.Department) *DepartmentStore {
	s := &DepartmentStore{depts: make(map[string]domain.Department)}
	for _, d := range depts {
		s.depts[d.ID] = d
	}
	return s
}

func (s *DepartmentStore) GetByID(_ context.Context, id string) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

// RuleStore is an in-memory repository.SLARuleRepository.
type RuleStore struct {
	mu     sync.RWMutex
	nextID int64
	rules  map[int64]domain.SLARule
	now    func() time.Time
}

// NewRuleStore builds a store. Seeded rules keep their IDs.
func NewRuleStore(rules ...domain.SLARule) *RuleStore {
	s := &RuleStore{rules: make(map[int64]domain.SLARule), now: time.Now}
	for _, r := range rules {
		s.rules[r.ID] = cloneRule(r)
		if r.ID > s.nextID {
			s.nextID = r.ID
		}
	}
	return s
}

func (s *RuleStore) Create(_ context.Context, rule *domain.SLARule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now().UTC()
	rule.ID = s.nextID
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = cloneRule(*rule)
	return nil
}

func (s *RuleStore) Update(_ context.Context, rule *domain.SLARule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	rule.Version = existing.Version + 1
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now().UTC()
	s.rules[rule.ID] = cloneRule(*rule)
	return nil
}

func (s *RuleStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.rules, id)
	return nil
}

func (s *RuleStore) GetByID(_ context.Context, id int64) (*domain.SLARule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := cloneRule(r)
	return &clone, nil
}

func (s *RuleStore) List(_ context.Context) ([]domain.SLARule, error) {
	return s.collect(func(domain.SLARule) bool { return true }, func(a, b domain.SLARule) bool {
		if a.Name == b.Name {
			return a.ID < b.ID
		}
		return a.Name < b.Name
	}), nil
}

func (s *RuleStore) ListActive(_ context.Context) ([]domain.SLARule, error) {
	return s.collect(func(r domain.SLARule) bool { return r.IsActive }, func(a, b domain.SLARule) bool {
		return a.ID < b.ID
	}), nil
}

func (s *RuleStore) collect(keep func(domain.SLARule) bool, less func(a, b domain.SLARule) bool) []domain.SLARule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.SLARule
	for _, r := range s.rules {
		if keep(r) {
			result = append(result, cloneRule(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func cloneRule(r domain.SLARule) domain.SLARule {
	r.Priorities = slices.Clone(r.Priorities)
	r.CustomerTypes = slices.Clone(r.CustomerTypes)
	r.PauseConditions = slices.Clone(r.PauseConditions)
	r.EscalationLevels = slices.Clone(r.EscalationLevels)
	return r
}

// PauseStore is an in-memory sla.PauseStore.
type PauseStore struct {
	mu        sync.RWMutex
	intervals map[string][]domain.PauseInterval
}

// NewPauseStore builds an empty store.
func NewPauseStore() *PauseStore {
	return &PauseStore{intervals: make(map[string][]domain.PauseInterval)}
}

func (s *PauseStore) ListByTicket(_ context.Context, ticketID string) ([]domain.PauseInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.intervals[ticketID]), nil
}

func (s *PauseStore) Create(_ context.Context, interval *domain.PauseInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range s.intervals[interval.TicketID] {
		if iv.IsOpen() {
			return sla.ErrAlreadyPaused
		}
	}
	interval.CreatedAt = time.Now().UTC()
	list := append(s.intervals[interval.TicketID], *interval)
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
	s.intervals[interval.TicketID] = list
	return nil
}

func (s *PauseStore) Close(_ context.Context, intervalID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ticketID, list := range s.intervals {
		for i := range list {
			if list[i].ID != intervalID {
				continue
			}
			if !list[i].IsOpen() {
				return sla.ErrNotPaused
			}
			end := endedAt
			s.intervals[ticketID][i].EndedAt = &end
			return nil
		}
	}
	return sla.ErrNotPaused
}

// EscalationStore is an in-memory repository.EscalationRepository.
type EscalationStore struct {
	mu      sync.RWMutex
	firings []domain.EscalationFiring
}

// NewEscalationStore builds an empty store.
func NewEscalationStore() *EscalationStore {
	return &EscalationStore{}
}

func (s *EscalationStore) FiredLevels(_ context.Context, ticketID string, ruleID int64) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var levels []int
	for _, f := range s.firings {
		if f.TicketID == ticketID && f.RuleID == ruleID {
			levels = append(levels, f.Level)
		}
	}
	sort.Ints(levels)
	return levels, nil
}

func (s *EscalationStore) RecordFirings(_ context.Context, firings []domain.EscalationFiring) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range firings {
		if s.exists(f.TicketID, f.RuleID, f.Level) {
			continue
		}
		s.firings = append(s.firings, f)
	}
	return nil
}

func (s *EscalationStore) exists(ticketID string, ruleID int64, level int) bool {
	for _, f := range s.firings {
		if f.TicketID == ticketID && f.RuleID == ruleID && f.Level == level {
			return true
		}
	}
	return false
}

func (s *EscalationStore) ListByTicket(_ context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.EscalationFiring
	for _, f := range s.firings {
		if f.TicketID == ticketID {
			result = append(result, f)
		}
	}
	return result, nil
}

func (s *EscalationStore) CountByRule(_ context.Context, ruleID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, f := range s.firings {
		if f.RuleID == ruleID {
			count++
		}
	}
	return count, nil
}

var (
	_ repository.TicketRepository     = (*TicketStore)(nil)
	_ repository.DepartmentRepository = (*DepartmentStore)(nil)
	_ repository.SLARuleRepository    = (*RuleStore)(nil)
	_ repository.EscalationRepository = (*EscalationStore)(nil)
	_ sla.PauseStore                  = (*PauseStore)(nil)
)
