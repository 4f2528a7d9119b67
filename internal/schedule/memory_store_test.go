package schedule

import (
	"context"
	"testing"
	"time"
)

func testBooking() Booking {
	return Booking{
		HospitalCode:   "H1",
		Department:     "Khám Bệnh",
		DoctorName:     "Bs A",
		Date:           "2025-01-15",
		SlotTime:       "08:00",
		DepartmentCode: "KBENH",
	}
}

func TestInsertBookingIdempotentByFailure(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ok, reason := s.InsertBooking(ctx, testBooking())
	if !ok || reason != ReasonBooked {
		t.Fatalf("first insert = %v %q", ok, reason)
	}
	if s.Version() != 1 {
		t.Errorf("version = %d, want 1", s.Version())
	}

	ok, reason = s.InsertBooking(ctx, testBooking())
	if ok || reason != ReasonAlreadyBooked {
		t.Fatalf("second insert = %v %q", ok, reason)
	}
	if s.Version() != 1 {
		t.Errorf("version bumped on failed insert: %d", s.Version())
	}
}

func TestDepartmentNotPartOfIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	b := testBooking()
	s.InsertBooking(ctx, b)

	b2 := testBooking()
	b2.Department = "Khoa Khác"
	b2.DepartmentCode = "KK"
	if ok, reason := s.InsertBooking(ctx, b2); ok || reason != ReasonAlreadyBooked {
		t.Fatalf("same doctor/date/slot under other department must collide, got %v %q", ok, reason)
	}
}

func TestCreateHoldLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	h := Hold{Booking: testBooking(), SessionID: "s1", TTL: 5 * time.Minute}
	if ok, reason := s.CreateHold(ctx, h); !ok || reason != ReasonHeld {
		t.Fatalf("create hold = %v %q", ok, reason)
	}

	// same session re-hold is an upsert
	if ok, _ := s.CreateHold(ctx, h); !ok {
		t.Fatal("re-hold by owner should succeed")
	}

	other := h
	other.SessionID = "s2"
	if ok, reason := s.CreateHold(ctx, other); ok || reason != ReasonHeldByOther {
		t.Fatalf("other session hold = %v %q", ok, reason)
	}

	if err := s.CancelHoldsForSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if s.HoldCount() != 0 {
		t.Fatalf("holds remain after cancel: %d", s.HoldCount())
	}

	if ok, _ := s.CreateHold(ctx, other); !ok {
		t.Fatal("slot should be holdable after cancel")
	}
}

func TestCreateHoldRejectsBookedSlot(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.InsertBooking(ctx, testBooking())

	h := Hold{Booking: testBooking(), SessionID: "s1"}
	if ok, reason := s.CreateHold(ctx, h); ok || reason != ReasonAlreadyBooked {
		t.Fatalf("hold on booked slot = %v %q", ok, reason)
	}
}

func TestHoldExpirySweep(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	s.now = func() time.Time { return base }

	h1 := Hold{Booking: testBooking(), SessionID: "s1", TTL: 60 * time.Second}
	if ok, _ := s.CreateHold(ctx, h1); !ok {
		t.Fatal("initial hold failed")
	}

	// 70s later another session takes the slot; the expired hold is swept
	s.now = func() time.Time { return base.Add(70 * time.Second) }
	h2 := Hold{Booking: testBooking(), SessionID: "s2", TTL: 60 * time.Second}
	if ok, reason := s.CreateHold(ctx, h2); !ok || reason != ReasonHeld {
		t.Fatalf("post-expiry hold = %v %q", ok, reason)
	}

	if ok, reason := s.PromoteHold(ctx, "s1", testBooking()); ok || reason != ReasonHeldByOther {
		t.Fatalf("stale session promote = %v %q", ok, reason)
	}
}

func TestHoldExpiredExactlyAtNow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	s.now = func() time.Time { return base }

	h := Hold{Booking: testBooking(), SessionID: "s1", TTL: 60 * time.Second}
	s.CreateHold(ctx, h)

	s.now = func() time.Time { return base.Add(60 * time.Second) }
	if ok, reason := s.PromoteHold(ctx, "s1", testBooking()); ok || reason != ReasonHoldExpired {
		t.Fatalf("promote at exact expiry = %v %q", ok, reason)
	}
	if s.HoldCount() != 0 {
		t.Error("stale hold should be deleted on failed promote")
	}
}

func TestHoldTTLClampedToMinimum(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	s.now = func() time.Time { return base }

	h := Hold{Booking: testBooking(), SessionID: "s1", TTL: 5 * time.Second}
	s.CreateHold(ctx, h)

	// 30s < clamped 60s floor, hold must still be live
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	if ok, reason := s.PromoteHold(ctx, "s1", testBooking()); !ok {
		t.Fatalf("promote within clamped TTL = %v %q", ok, reason)
	}
}

func TestPromoteHold(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if ok, reason := s.PromoteHold(ctx, "s1", testBooking()); ok || reason != ReasonNoHold {
		t.Fatalf("promote without hold = %v %q", ok, reason)
	}

	s.CreateHold(ctx, Hold{Booking: testBooking(), SessionID: "s1", TTL: 5 * time.Minute})

	if ok, reason := s.PromoteHold(ctx, "s2", testBooking()); ok || reason != ReasonHeldByOther {
		t.Fatalf("promote by other = %v %q", ok, reason)
	}

	ok, reason := s.PromoteHold(ctx, "s1", testBooking())
	if !ok || reason != ReasonBooked {
		t.Fatalf("promote = %v %q", ok, reason)
	}
	if s.HoldCount() != 0 {
		t.Error("hold must be gone after promotion")
	}
	if s.Version() != 1 {
		t.Errorf("version = %d, want 1", s.Version())
	}

	// concurrent conflict tail: the loser sees already_booked on its own path
	if ok, reason := s.CreateHold(ctx, Hold{Booking: testBooking(), SessionID: "s2"}); ok || reason != ReasonAlreadyBooked {
		t.Fatalf("hold after booking = %v %q", ok, reason)
	}
}

func TestPromoteInheritsHoldDepartmentCode(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.CreateHold(ctx, Hold{Booking: testBooking(), SessionID: "s1", TTL: 5 * time.Minute})

	b := testBooking()
	b.DepartmentCode = ""
	if ok, _ := s.PromoteHold(ctx, "s1", b); !ok {
		t.Fatal("promote failed")
	}

	snap, err := s.BookingsSnapshotByCodes(ctx, "H1", []string{"KBENH"}, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Bookings["KBENH"]["Bs A"]) != 1 {
		t.Fatalf("promoted row lost hold's department code: %+v", snap)
	}
}

func TestBookingsSnapshotByCodesCountsLegacyRows(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	legacy := testBooking()
	legacy.DepartmentCode = ""
	s.InsertBooking(ctx, legacy)

	coded := testBooking()
	coded.SlotTime = "08:20"
	s.InsertBooking(ctx, coded)

	snap, err := s.BookingsSnapshotByCodes(ctx, "H1", []string{"KBENH"}, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if snap.LegacyRowsIgnored != 1 {
		t.Errorf("legacy_rows_ignored = %d, want 1", snap.LegacyRowsIgnored)
	}
	if got := snap.Bookings["KBENH"]["Bs A"]; len(got) != 1 || got[0] != "08:20" {
		t.Errorf("coded rows = %v", got)
	}
}

func TestBackfillDepartmentCodes(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for _, slot := range []string{"08:00", "08:20", "08:40", "09:00", "09:20"} {
		b := testBooking()
		b.SlotTime = slot
		b.DepartmentCode = ""
		s.InsertBooking(ctx, b)
	}

	updated, err := s.BackfillDepartmentCodes(ctx, "H1", map[string]string{"Khám Bệnh": "KBENH"})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 5 {
		t.Fatalf("updated = %d, want 5", updated)
	}

	snap, _ := s.BookingsSnapshotByCodes(ctx, "H1", []string{"KBENH"}, "2025-01-15")
	if snap.LegacyRowsIgnored != 0 {
		t.Errorf("legacy_rows_ignored = %d after backfill", snap.LegacyRowsIgnored)
	}
	if len(snap.Bookings["KBENH"]["Bs A"]) != 5 {
		t.Errorf("rows = %v", snap.Bookings)
	}
}

func TestBackfillSkipsDriftedNames(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	b := testBooking()
	b.Department = "Khoa Đã Đổi Tên"
	b.DepartmentCode = ""
	s.InsertBooking(ctx, b)

	updated, _ := s.BackfillDepartmentCodes(ctx, "H1", map[string]string{"Khám Bệnh": "KBENH"})
	if updated != 0 {
		t.Fatalf("drifted name should not backfill, updated = %d", updated)
	}
}

func TestBlockedSnapshotUnionsHoldsAndBookings(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	s.InsertBooking(ctx, testBooking())

	held := testBooking()
	held.SlotTime = "08:20"
	s.CreateHold(ctx, Hold{Booking: held, SessionID: "s1", TTL: 5 * time.Minute})

	blocked, err := s.BlockedSnapshotByCodes(ctx, "H1", []string{"KBENH"}, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	slots := blocked["KBENH"]["Bs A"]
	if len(slots) != 2 || slots[0] != "08:00" || slots[1] != "08:20" {
		t.Fatalf("blocked = %v", slots)
	}
}

func TestBlockedSnapshotSkipsExpiredHolds(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.CreateHold(ctx, Hold{Booking: testBooking(), SessionID: "s1", TTL: 60 * time.Second})

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	blocked, _ := s.BlockedSnapshotByCodes(ctx, "H1", []string{"KBENH"}, "2025-01-15")
	if len(blocked["KBENH"]["Bs A"]) != 0 {
		t.Fatalf("expired hold still blocks: %v", blocked)
	}
}

func TestHospitalsWithBookings(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.InsertBooking(ctx, testBooking())

	b2 := testBooking()
	b2.HospitalCode = "H2"
	s.InsertBooking(ctx, b2)

	hospitals, err := s.HospitalsWithBookings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hospitals) != 2 || hospitals[0] != "H1" || hospitals[1] != "H2" {
		t.Fatalf("hospitals = %v", hospitals)
	}
}
