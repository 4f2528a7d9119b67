package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
	"github.com/techxpo/clinic-kiosk/internal/observability/metrics"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// BookRequest identifies one slot for booking or holding.
type BookRequest struct {
	HospitalCode   string `json:"hospital_code"`
	Department     string `json:"department"`
	DoctorName     string `json:"doctor_name"`
	Date           string `json:"date"`
	SlotTime       string `json:"slot_time"`
	DepartmentCode string `json:"department_code,omitempty"`
}

// FreeInterval is a contiguous run of free slot starts; End is the last free
// slot start, not its finish.
type FreeInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is one doctor's slot occupancy for a date.
type Availability struct {
	Booked        []string       `json:"booked"`
	FreeSlots     []string       `json:"free_slots"`
	FreeIntervals []FreeInterval `json:"free_intervals"`
}

// DoctorOverview pairs a doctor with their availability.
type DoctorOverview struct {
	Name         string       `json:"name"`
	Availability Availability `json:"availability"`
}

// DepartmentOverview groups doctors under a normalized department name.
type DepartmentOverview struct {
	Department string           `json:"department"`
	Doctors    []DoctorOverview `json:"doctors"`
}

// SlotWindow describes the fixed grid for dashboard clients.
type SlotWindow struct {
	Start       string   `json:"start"`
	End         string   `json:"end"`
	SlotMinutes int      `json:"slot_minutes"`
	AllSlots    []string `json:"all_slots"`
}

// Overview is the per-doctor availability document for one hospital/date.
type Overview struct {
	HospitalCode string               `json:"hospital_code"`
	Date         string               `json:"date"`
	Departments  []DepartmentOverview `json:"departments"`
	SlotWindow   SlotWindow           `json:"slot_window"`
}

// SchedulerConfig wires the Scheduler's collaborators.
type SchedulerConfig struct {
	Catalog *catalog.Catalog
	Store   Store
	Grid    Grid
	HoldTTL time.Duration
	Metrics *metrics.BookingMetrics
	Logger  *logging.Logger
}

// Scheduler validates booking operations against the catalog and slot grid
// before delegating persistence to the Store.
type Scheduler struct {
	catalog *catalog.Catalog
	store   Store
	grid    Grid
	allowed map[string]bool
	holdTTL time.Duration
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	grid := cfg.Grid
	if grid.SlotMinutes == 0 {
		grid = DefaultGrid()
	}
	holdTTL := cfg.HoldTTL
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &Scheduler{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		grid:    grid,
		allowed: grid.Allowed(),
		holdTTL: holdTTL,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Grid exposes the configured slot grid.
func (s *Scheduler) Grid() Grid { return s.grid }

// Store exposes the underlying store for snapshot reads.
func (s *Scheduler) Store() Store { return s.store }

// Catalog exposes the hospital catalog.
func (s *Scheduler) Catalog() *catalog.Catalog { return s.catalog }

// ValidDate reports whether the string is a YYYY-MM-DD calendar date.
func ValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// doctorInDepartment verifies the doctor exists under the department,
// preferring the code path and falling back to the normalized display name.
func (s *Scheduler) doctorInDepartment(hospitalCode, depNorm, doctorName, departmentCode string) bool {
	if departmentCode != "" {
		byCode := s.catalog.DoctorsForDepartmentCodes(hospitalCode, []string{departmentCode})
		for _, name := range byCode[departmentCode] {
			if name == doctorName {
				return true
			}
		}
	}
	byName := s.catalog.DoctorsForDepartments(hospitalCode, []string{depNorm})
	for _, name := range byName[depNorm] {
		if name == doctorName {
			return true
		}
	}
	return false
}

// BookSlot validates and inserts a confirmed booking.
func (s *Scheduler) BookSlot(ctx context.Context, req BookRequest) (bool, string) {
	slot := strings.TrimSpace(req.SlotTime)
	if !s.allowed[slot] {
		return false, ReasonInvalidSlotTime
	}
	depNorm := catalog.NormalizeDepartment(req.Department)
	if !s.doctorInDepartment(req.HospitalCode, depNorm, req.DoctorName, req.DepartmentCode) {
		return false, ReasonDoctorNotFound
	}
	ok, reason := s.store.InsertBooking(ctx, Booking{
		HospitalCode:   req.HospitalCode,
		Department:     depNorm,
		DoctorName:     req.DoctorName,
		Date:           req.Date,
		SlotTime:       slot,
		DepartmentCode: req.DepartmentCode,
	})
	s.metrics.ObserveBooking(reason)
	return ok, reason
}

// CreateHold validates and creates a soft hold owned by the session.
func (s *Scheduler) CreateHold(ctx context.Context, req BookRequest, sessionID string, ttl time.Duration) (bool, string) {
	slot := strings.TrimSpace(req.SlotTime)
	if !s.allowed[slot] {
		return false, ReasonInvalidSlotTime
	}
	depNorm := catalog.NormalizeDepartment(req.Department)
	if !s.doctorInDepartment(req.HospitalCode, depNorm, req.DoctorName, req.DepartmentCode) {
		return false, ReasonDoctorNotFound
	}
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	ok, reason := s.store.CreateHold(ctx, Hold{
		Booking: Booking{
			HospitalCode:   req.HospitalCode,
			Department:     depNorm,
			DoctorName:     req.DoctorName,
			Date:           req.Date,
			SlotTime:       slot,
			DepartmentCode: req.DepartmentCode,
		},
		SessionID: sessionID,
		TTL:       ttl,
	})
	s.metrics.ObserveHold(reason)
	return ok, reason
}

// PromoteHold promotes the session's hold to a confirmed booking.
func (s *Scheduler) PromoteHold(ctx context.Context, sessionID string, req BookRequest) (bool, string) {
	ok, reason := s.store.PromoteHold(ctx, sessionID, Booking{
		HospitalCode:   req.HospitalCode,
		Department:     catalog.NormalizeDepartment(req.Department),
		DoctorName:     req.DoctorName,
		Date:           req.Date,
		SlotTime:       strings.TrimSpace(req.SlotTime),
		DepartmentCode: req.DepartmentCode,
	})
	s.metrics.ObserveBooking(reason)
	return ok, reason
}

// CancelSession releases every hold owned by the session.
func (s *Scheduler) CancelSession(ctx context.Context, sessionID string) {
	if err := s.store.CancelHoldsForSession(ctx, sessionID); err != nil {
		s.logger.Warn("cancel session holds failed", "error", err, "session_id", sessionID)
	}
}

// Overview joins the catalog roster with booked slots into a per-doctor
// availability document.
func (s *Scheduler) Overview(ctx context.Context, hospitalCode string, departments []string, date string) Overview {
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	out := Overview{
		HospitalCode: hospitalCode,
		Date:         date,
		Departments:  []DepartmentOverview{},
		SlotWindow: SlotWindow{
			Start:       s.grid.Start,
			End:         s.grid.End,
			SlotMinutes: s.grid.SlotMinutes,
			AllSlots:    s.grid.Slots(),
		},
	}
	for dep, doctors := range s.catalog.DoctorsForDepartments(hospitalCode, departments) {
		entry := DepartmentOverview{Department: dep, Doctors: []DoctorOverview{}}
		for _, doc := range doctors {
			booked, err := s.store.BookedSlotsForDoctor(ctx, hospitalCode, doc, date)
			if err != nil {
				s.logger.Warn("booked slots read failed", "error", err, "doctor", doc)
				booked = nil
			}
			entry.Doctors = append(entry.Doctors, DoctorOverview{
				Name:         doc,
				Availability: s.computeAvailability(booked),
			})
		}
		out.Departments = append(out.Departments, entry)
	}
	return out
}

func (s *Scheduler) computeAvailability(booked []string) Availability {
	bookedSet := map[string]bool{}
	for _, b := range booked {
		bookedSet[b] = true
	}
	free := []string{}
	for _, slot := range s.grid.Slots() {
		if !bookedSet[slot] {
			free = append(free, slot)
		}
	}
	if booked == nil {
		booked = []string{}
	}
	return Availability{
		Booked:        booked,
		FreeSlots:     free,
		FreeIntervals: compressFreeSlots(free, s.grid.SlotMinutes),
	}
}

// FreeSlotsByCodes computes per-doctor free slots for the given department
// codes across one hospital, subtracting booked and held slots.
func (s *Scheduler) FreeSlotsByCodes(ctx context.Context, hospitalCode string, codes []string, date string) (map[string]DoctorSlots, error) {
	blocked, err := s.store.BlockedSnapshotByCodes(ctx, hospitalCode, codes, date)
	if err != nil {
		return nil, err
	}
	out := map[string]DoctorSlots{}
	rosters := s.catalog.DoctorsForDepartmentCodes(hospitalCode, codes)
	for code, doctors := range rosters {
		out[code] = DoctorSlots{}
		for _, doc := range doctors {
			blockedSet := map[string]bool{}
			for _, slot := range blocked[code][doc] {
				blockedSet[slot] = true
			}
			free := []string{}
			for _, slot := range s.grid.Slots() {
				if !blockedSet[slot] {
					free = append(free, slot)
				}
			}
			out[code][doc] = free
		}
	}
	return out, nil
}

// Backfill populates department_code on legacy rows for one hospital, or for
// every hospital present in the bookings table when hospitalCode is empty.
func (s *Scheduler) Backfill(ctx context.Context, hospitalCode string) (BackfillSummary, error) {
	summary := BackfillSummary{Hospitals: map[string]int{}}
	targets := []string{hospitalCode}
	if hospitalCode == "" {
		var err error
		targets, err = s.store.HospitalsWithBookings(ctx)
		if err != nil {
			return summary, err
		}
	}
	for _, h := range targets {
		meta := s.catalog.Meta(h)
		if meta == nil || len(meta.DepartmentsByCode) == 0 {
			continue
		}
		nameToCode := map[string]string{}
		for code, info := range meta.DepartmentsByCode {
			name := info.Name
			if name == "" {
				name = code
			}
			nameToCode[catalog.NormalizeDepartment(name)] = code
		}
		updated, err := s.store.BackfillDepartmentCodes(ctx, h, nameToCode)
		if err != nil {
			s.logger.Warn("backfill failed", "error", err, "hospital_code", h)
			continue
		}
		if updated > 0 {
			summary.Hospitals[h] = updated
			summary.Updated += updated
		}
	}
	return summary, nil
}

// compressFreeSlots groups contiguous free slot starts into ranges.
func compressFreeSlots(free []string, slotMinutes int) []FreeInterval {
	if len(free) == 0 {
		return []FreeInterval{}
	}
	var out []FreeInterval
	start := free[0]
	prev := free[0]
	prevMin, _ := MinuteOfDay(prev)
	for _, slot := range free[1:] {
		cur, _ := MinuteOfDay(slot)
		if cur-prevMin == slotMinutes {
			prev = slot
			prevMin = cur
			continue
		}
		out = append(out, FreeInterval{Start: start, End: prev})
		start, prev, prevMin = slot, slot, cur
	}
	out = append(out, FreeInterval{Start: start, End: prev})
	return out
}
