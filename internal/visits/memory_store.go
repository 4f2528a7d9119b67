package visits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a Store for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer // keyed by normalized phone
	visitRows []Visit

	now func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		customers: map[string]*Customer{},
		now:       time.Now,
	}
}

func (s *InMemoryStore) GetOrCreateCustomer(_ context.Context, name, phone string) (string, bool, error) {
	norm := NormalizePhone(phone)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[norm]; ok {
		c.Name = name
		return c.ID, false, nil
	}
	c := &Customer{ID: CustomerIDFromPhone(phone), Name: name, Phone: norm}
	s.customers[norm] = c
	return c.ID, true, nil
}

func (s *InMemoryStore) CustomerIDByPhone(_ context.Context, phone string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.customers[NormalizePhone(phone)]; ok {
		return c.ID, nil
	}
	return "", nil
}

func (s *InMemoryStore) SaveVisit(_ context.Context, customerID string, payload map[string]any, summary, facts string) (string, error) {
	visitID := "VIS-" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitRows = append(s.visitRows, Visit{
		VisitID:    visitID,
		CustomerID: customerID,
		CreatedAt:  s.now(),
		Payload:    payload,
		Summary:    summary,
		Facts:      facts,
	})
	return visitID, nil
}

func (s *InMemoryStore) RecentVisits(_ context.Context, customerID string, limit int) ([]Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Visit
	for _, v := range s.visitRows {
		if v.CustomerID == customerID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) FactsSummary(_ context.Context, customerID string) (FactsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.ID == customerID {
			return FactsSummary{Facts: c.Facts, LastSummary: c.LastSummary}, nil
		}
	}
	return FactsSummary{}, nil
}

func (s *InMemoryStore) UpdateFactsSummary(_ context.Context, customerID, facts, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == customerID {
			c.Facts = facts
			c.LastSummary = summary
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) FindVisitByBooking(_ context.Context, hospitalCode, date, doctorName, slotTime string) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]Visit, len(s.visitRows))
	copy(candidates, s.visitRows)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	if len(candidates) > candidateScanLimit {
		candidates = candidates[:candidateScanLimit]
	}
	for i := range candidates {
		if matchVisit(candidates[i], hospitalCode, date, doctorName, slotTime) {
			v := candidates[i]
			return &v, nil
		}
	}
	return nil, nil
}
