package schedule

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// slotKey is the identity shared by bookings and holds.
type slotKey struct {
	hospitalCode string
	doctorName   string
	date         string
	slotTime     string
}

func keyOf(b Booking) slotKey {
	return slotKey{
		hospitalCode: b.HospitalCode,
		doctorName:   b.DoctorName,
		date:         b.Date,
		slotTime:     b.SlotTime,
	}
}

// InMemoryStore is a Store for tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	bookings map[slotKey]Booking
	holds    map[slotKey]Hold
	version  atomic.Uint64

	now func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bookings: map[slotKey]Booking{},
		holds:    map[slotKey]Hold{},
		now:      time.Now,
	}
}

func (s *InMemoryStore) Version() uint64 {
	return s.version.Load()
}

func (s *InMemoryStore) InsertBooking(_ context.Context, b Booking) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(b)
	if _, exists := s.bookings[key]; exists {
		return false, ReasonAlreadyBooked
	}
	s.bookings[key] = b
	s.version.Add(1)
	return true, ReasonBooked
}

func (s *InMemoryStore) CreateHold(_ context.Context, h Hold) (bool, string) {
	now := s.now()
	ttl := h.TTL
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	if ttl < MinHoldTTL {
		ttl = MinHoldTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpiredLocked(now)

	key := keyOf(h.Booking)
	if _, booked := s.bookings[key]; booked {
		return false, ReasonAlreadyBooked
	}
	if existing, ok := s.holds[key]; ok && existing.SessionID != h.SessionID {
		return false, ReasonHeldByOther
	}
	h.HeldAt = now
	h.ExpiresAt = now.Add(ttl)
	s.holds[key] = h
	return true, ReasonHeld
}

func (s *InMemoryStore) CancelHoldsForSession(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, h := range s.holds {
		if h.SessionID == sessionID {
			delete(s.holds, key)
		}
	}
	return nil
}

func (s *InMemoryStore) PromoteHold(_ context.Context, sessionID string, b Booking) (bool, string) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(b)
	hold, ok := s.holds[key]
	if !ok {
		return false, ReasonNoHold
	}
	if hold.SessionID != sessionID {
		return false, ReasonHeldByOther
	}
	if !hold.ExpiresAt.After(now) {
		delete(s.holds, key)
		return false, ReasonHoldExpired
	}
	if _, booked := s.bookings[key]; booked {
		return false, ReasonAlreadyBooked
	}
	if b.DepartmentCode == "" {
		b.DepartmentCode = hold.DepartmentCode
	}
	s.bookings[key] = b
	delete(s.holds, key)
	s.version.Add(1)
	return true, ReasonBooked
}

func (s *InMemoryStore) BookedSlotsForDoctor(_ context.Context, hospitalCode, doctorName, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key := range s.bookings {
		if key.hospitalCode == hospitalCode && key.doctorName == doctorName && key.date == date {
			out = append(out, key.slotTime)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) BookingsSnapshot(_ context.Context, hospitalCode string, departments []string, date string) (NameSnapshot, error) {
	want := map[string]bool{}
	for _, d := range departments {
		want[d] = true
	}
	snap := NameSnapshot{
		HospitalCode: hospitalCode,
		Date:         date,
		Version:      s.Version(),
		Bookings:     map[string]DoctorSlots{},
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, b := range s.bookings {
		if key.hospitalCode != hospitalCode || key.date != date || !want[b.Department] {
			continue
		}
		addSlot(snap.Bookings, b.Department, key.doctorName, key.slotTime)
	}
	sortSlots(snap.Bookings)
	return snap, nil
}

func (s *InMemoryStore) BookingsSnapshotByCodes(_ context.Context, hospitalCode string, codes []string, date string) (CodeSnapshot, error) {
	want := map[string]bool{}
	for _, c := range codes {
		if c != "" {
			want[c] = true
		}
	}
	snap := CodeSnapshot{
		HospitalCode: hospitalCode,
		Date:         date,
		Version:      s.Version(),
		Bookings:     map[string]DoctorSlots{},
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, b := range s.bookings {
		if key.hospitalCode != hospitalCode || key.date != date {
			continue
		}
		if b.DepartmentCode == "" {
			snap.LegacyRowsIgnored++
			continue
		}
		if want[b.DepartmentCode] {
			addSlot(snap.Bookings, b.DepartmentCode, key.doctorName, key.slotTime)
		}
	}
	sortSlots(snap.Bookings)
	return snap, nil
}

func (s *InMemoryStore) BlockedSnapshotByCodes(_ context.Context, hospitalCode string, codes []string, date string) (map[string]DoctorSlots, error) {
	want := map[string]bool{}
	for _, c := range codes {
		if c != "" {
			want[c] = true
		}
	}
	now := s.now()
	out := map[string]DoctorSlots{}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, b := range s.bookings {
		if key.hospitalCode == hospitalCode && key.date == date && want[b.DepartmentCode] {
			addSlot(out, b.DepartmentCode, key.doctorName, key.slotTime)
		}
	}
	for key, h := range s.holds {
		if key.hospitalCode != hospitalCode || key.date != date || !want[h.DepartmentCode] {
			continue
		}
		if !h.ExpiresAt.After(now) {
			continue
		}
		addSlot(out, h.DepartmentCode, key.doctorName, key.slotTime)
	}
	sortSlots(out)
	return out, nil
}

func (s *InMemoryStore) BackfillDepartmentCodes(_ context.Context, hospitalCode string, nameToCode map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for key, b := range s.bookings {
		if key.hospitalCode != hospitalCode || b.DepartmentCode != "" {
			continue
		}
		if code, ok := nameToCode[b.Department]; ok {
			b.DepartmentCode = code
			s.bookings[key] = b
			updated++
		}
	}
	return updated, nil
}

func (s *InMemoryStore) HospitalsWithBookings(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for key := range s.bookings {
		if !seen[key.hospitalCode] {
			seen[key.hospitalCode] = true
			out = append(out, key.hospitalCode)
		}
	}
	sort.Strings(out)
	return out, nil
}

// sweepExpiredLocked deletes holds whose expiry has passed. A hold expiring
// exactly at now is swept.
func (s *InMemoryStore) sweepExpiredLocked(now time.Time) {
	for key, h := range s.holds {
		if !h.ExpiresAt.After(now) {
			delete(s.holds, key)
		}
	}
}

// HoldCount reports live holds, used by tests.
func (s *InMemoryStore) HoldCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.holds)
}

func addSlot(m map[string]DoctorSlots, group, doctor, slot string) {
	if m[group] == nil {
		m[group] = DoctorSlots{}
	}
	m[group][doctor] = append(m[group][doctor], slot)
}

func sortSlots(m map[string]DoctorSlots) {
	for _, doctors := range m {
		for _, slots := range doctors {
			sort.Strings(slots)
		}
	}
}
