package schedule

import (
	"context"
	"time"
)

// Verdict reasons returned by store and scheduler operations. These are
// wire-level strings surfaced to API and tool callers, not Go error types.
const (
	ReasonBooked          = "booked"
	ReasonHeld            = "held"
	ReasonInvalidSlotTime = "invalid_slot_time"
	ReasonDoctorNotFound  = "doctor_not_found_in_department"
	ReasonAlreadyBooked   = "already_booked"
	ReasonHeldByOther     = "held_by_other"
	ReasonNoHold          = "no_hold"
	ReasonHoldExpired     = "hold_expired"
	ReasonDBError         = "db_error"
)

// MinHoldTTL is the floor every hold TTL is clamped to.
const MinHoldTTL = 60 * time.Second

// DefaultHoldTTL applies when the caller passes no TTL.
const DefaultHoldTTL = 300 * time.Second

// Booking is one confirmed appointment row. Identity is
// (HospitalCode, DoctorName, Date, SlotTime); Department is display metadata
// and DepartmentCode is nullable for legacy rows.
type Booking struct {
	HospitalCode   string `json:"hospital_code"`
	Department     string `json:"department"`
	DoctorName     string `json:"doctor_name"`
	Date           string `json:"date"`      // YYYY-MM-DD
	SlotTime       string `json:"slot_time"` // HH:MM
	DepartmentCode string `json:"department_code,omitempty"`
}

// Hold is a transient soft reservation with the same identity as a Booking,
// owned by one session until it expires or is promoted.
type Hold struct {
	Booking
	SessionID string        `json:"session_id"`
	TTL       time.Duration `json:"-"`
	HeldAt    time.Time     `json:"held_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// DoctorSlots maps doctor name to sorted slot times.
type DoctorSlots map[string][]string

// CodeSnapshot is a code-keyed view of one hospital's bookings for a date.
// Legacy rows whose department_code is null are counted, not mapped.
type CodeSnapshot struct {
	HospitalCode      string                 `json:"hospital_code"`
	Date              string                 `json:"date"`
	Version           uint64                 `json:"version"`
	Bookings          map[string]DoctorSlots `json:"bookings"`
	LegacyRowsIgnored int                    `json:"legacy_rows_ignored,omitempty"`
}

// NameSnapshot is the legacy name-keyed view.
type NameSnapshot struct {
	HospitalCode string                 `json:"hospital_code"`
	Date         string                 `json:"date"`
	Version      uint64                 `json:"version"`
	Bookings     map[string]DoctorSlots `json:"bookings"`
}

// BackfillSummary reports how many legacy rows gained a department code.
type BackfillSummary struct {
	Updated   int            `json:"updated"`
	Hospitals map[string]int `json:"hospitals"`
}

// Store persists bookings and holds. All mutations are serialized by a
// process-wide writer lock inside the implementation; the version counter is
// bumped inside the same critical section as a successful booking insert.
type Store interface {
	// InsertBooking adds a booking row. Department must already be
	// normalized. Returns (false, already_booked) on key collision.
	InsertBooking(ctx context.Context, b Booking) (bool, string)

	// CreateHold sweeps expired holds, then upserts a hold for the session.
	// Rejects with already_booked or held_by_other. The TTL is clamped to
	// MinHoldTTL.
	CreateHold(ctx context.Context, h Hold) (bool, string)

	// CancelHoldsForSession removes every hold owned by the session.
	CancelHoldsForSession(ctx context.Context, sessionID string) error

	// PromoteHold atomically verifies the session's live hold, inserts the
	// booking, and deletes the hold. Distinct failures: no_hold,
	// held_by_other, hold_expired (stale hold deleted), already_booked.
	PromoteHold(ctx context.Context, sessionID string, b Booking) (bool, string)

	// BookedSlotsForDoctor lists a doctor's booked slot times for a date.
	BookedSlotsForDoctor(ctx context.Context, hospitalCode, doctorName, date string) ([]string, error)

	// BookingsSnapshot returns the legacy name-keyed view restricted to the
	// given normalized department names.
	BookingsSnapshot(ctx context.Context, hospitalCode string, departments []string, date string) (NameSnapshot, error)

	// BookingsSnapshotByCodes returns the code-keyed view; null-code rows
	// are counted in LegacyRowsIgnored.
	BookingsSnapshotByCodes(ctx context.Context, hospitalCode string, codes []string, date string) (CodeSnapshot, error)

	// BlockedSnapshotByCodes unions confirmed bookings and live holds per
	// code and doctor. This is the availability source of truth.
	BlockedSnapshotByCodes(ctx context.Context, hospitalCode string, codes []string, date string) (map[string]DoctorSlots, error)

	// BackfillDepartmentCodes sets department_code on legacy null-code rows
	// whose department display matches a key of nameToCode exactly.
	BackfillDepartmentCodes(ctx context.Context, hospitalCode string, nameToCode map[string]string) (int, error)

	// HospitalsWithBookings lists distinct hospital codes in the bookings
	// table, for whole-database backfill.
	HospitalsWithBookings(ctx context.Context) ([]string, error)

	// Version returns the monotone bookings version counter.
	Version() uint64
}
