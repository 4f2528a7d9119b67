package visits

import (
	"context"
	"testing"
	"time"
)

func TestValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"0901234567", true},
		{"0351234567", true},
		{"1901234567", false},
		{"090123456", false},
		{"09012345678", false},
		{"0101234567", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidPhone(tt.phone); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+84 90 123-4567"); got != "84901234567" {
		t.Errorf("got %q", got)
	}
	if got := NormalizePhone("abc"); got != "unknown" {
		t.Errorf("got %q", got)
	}
}

func TestCustomerIDFromPhone(t *testing.T) {
	id := CustomerIDFromPhone("0901234567")
	if len(id) != len("CUS-")+10 || id[:4] != "CUS-" {
		t.Fatalf("id = %q", id)
	}
	// deterministic across formatting of the same digits
	if id != CustomerIDFromPhone("090-123-4567") {
		t.Error("id must depend on digits only")
	}
	if id == CustomerIDFromPhone("0901234568") {
		t.Error("different phones must map to different ids")
	}
}

func TestGetOrCreateCustomer(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	id1, created, err := s.GetOrCreateCustomer(ctx, "Nguyễn Văn A", "0901234567")
	if err != nil || !created {
		t.Fatalf("first call: id=%q created=%v err=%v", id1, created, err)
	}

	id2, created, err := s.GetOrCreateCustomer(ctx, "Nguyen Van A", "090 123 4567")
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}

	// latest name spelling wins
	got, _ := s.CustomerIDByPhone(ctx, "0901234567")
	if got != id1 {
		t.Errorf("lookup = %q", got)
	}
	s.mu.RLock()
	name := s.customers[NormalizePhone("0901234567")].Name
	s.mu.RUnlock()
	if name != "Nguyen Van A" {
		t.Errorf("name = %q", name)
	}
}

func TestCustomerIDByPhoneAbsent(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.CustomerIDByPhone(context.Background(), "0909999999")
	if err != nil || id != "" {
		t.Fatalf("id=%q err=%v", id, err)
	}
}

func TestSaveAndRecentVisits(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Now()
	i := 0
	s.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Minute) }

	cid, _, _ := s.GetOrCreateCustomer(ctx, "A", "0901234567")
	for n := 0; n < 3; n++ {
		if _, err := s.SaveVisit(ctx, cid, map[string]any{"n": n}, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	visits, err := s.RecentVisits(ctx, cid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 2 {
		t.Fatalf("visits = %d", len(visits))
	}
	if !visits[0].CreatedAt.After(visits[1].CreatedAt) {
		t.Error("visits not newest-first")
	}
}

func TestFactsSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	cid, _, _ := s.GetOrCreateCustomer(ctx, "A", "0901234567")

	fs, _ := s.FactsSummary(ctx, cid)
	if fs.Facts != "" || fs.LastSummary != "" {
		t.Fatalf("fresh customer facts = %+v", fs)
	}

	if err := s.UpdateFactsSummary(ctx, cid, "dị ứng penicillin", "khám ho"); err != nil {
		t.Fatal(err)
	}
	fs, _ = s.FactsSummary(ctx, cid)
	if fs.Facts != "dị ứng penicillin" || fs.LastSummary != "khám ho" {
		t.Fatalf("facts = %+v", fs)
	}
}

func TestFindVisitByBookingIndex(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	cid, _, _ := s.GetOrCreateCustomer(ctx, "A", "0901234567")

	payload := map[string]any{
		"booking_index": map[string]any{
			"hospital_code":   "H1",
			"department_code": "KBENH",
			"doctor_name":     "Bs A",
			"date":            "2025-01-15",
			"slot_time":       "08:00",
		},
	}
	vid, _ := s.SaveVisit(ctx, cid, payload, "summary", "facts")

	got, err := s.FindVisitByBooking(ctx, "H1", "2025-01-15", "Bs A", "08:00")
	if err != nil || got == nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if got.VisitID != vid {
		t.Errorf("visit id = %q, want %q", got.VisitID, vid)
	}

	// empty hospital/date are unconstrained
	got, _ = s.FindVisitByBooking(ctx, "", "", "Bs A", "08:00")
	if got == nil {
		t.Fatal("unconstrained lookup failed")
	}

	if got, _ := s.FindVisitByBooking(ctx, "H2", "2025-01-15", "Bs A", "08:00"); got != nil {
		t.Error("wrong hospital should not match")
	}
	if got, _ := s.FindVisitByBooking(ctx, "H1", "2025-01-15", "Bs A", "08:20"); got != nil {
		t.Error("wrong slot should not match")
	}
}

func TestFindVisitByBookingBroadScan(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	cid, _, _ := s.GetOrCreateCustomer(ctx, "A", "0901234567")

	// no booking_index; identifiers live in booking.chosen
	payload := map[string]any{
		"booking": map[string]any{
			"chosen": map[string]any{
				"hospital_code": "H1",
				"doctor_name":   "Bs B",
				"slot_time":     "09:00",
			},
		},
	}
	s.SaveVisit(ctx, cid, payload, "", "")

	got, err := s.FindVisitByBooking(ctx, "H1", "", "Bs B", "09:00")
	if err != nil || got == nil {
		t.Fatalf("broad scan failed: got=%v err=%v", got, err)
	}
}

func TestFindVisitByBookingNotFound(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.FindVisitByBooking(context.Background(), "H1", "2025-01-15", "Bs A", "08:00")
	if err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
