package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock, nil), mock
}

func TestPostgresInsertBooking(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("H1", "Khám Bệnh", "Bs A", "2025-01-15", "08:00", "KBENH").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, reason := store.InsertBooking(context.Background(), testBooking())
	if !ok || reason != ReasonBooked {
		t.Fatalf("insert = %v %q", ok, reason)
	}
	if store.Version() != 1 {
		t.Errorf("version = %d, want 1", store.Version())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertBookingUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("H1", "Khám Bệnh", "Bs A", "2025-01-15", "08:00", "KBENH").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	ok, reason := store.InsertBooking(context.Background(), testBooking())
	if ok || reason != ReasonAlreadyBooked {
		t.Fatalf("insert = %v %q", ok, reason)
	}
	if store.Version() != 0 {
		t.Errorf("version bumped on collision: %d", store.Version())
	}
}

func TestPostgresInsertBookingDBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("H1", "Khám Bệnh", "Bs A", "2025-01-15", "08:00", "KBENH").
		WillReturnError(errors.New("connection reset"))

	ok, reason := store.InsertBooking(context.Background(), testBooking())
	if ok || reason != ReasonDBError {
		t.Fatalf("insert = %v %q", ok, reason)
	}
}

func TestPostgresCreateHold(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM holds WHERE expires_at").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT 1 FROM bookings").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnError(errNoRows())
	mock.ExpectQuery("SELECT session_id FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnError(errNoRows())
	mock.ExpectExec("INSERT INTO holds").
		WithArgs("H1", "Khám Bệnh", "Bs A", "2025-01-15", "08:00", "s1", now, now.Add(5*time.Minute), "KBENH").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	h := Hold{Booking: testBooking(), SessionID: "s1", TTL: 5 * time.Minute}
	ok, reason := store.CreateHold(context.Background(), h)
	if !ok || reason != ReasonHeld {
		t.Fatalf("hold = %v %q", ok, reason)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateHoldHeldByOther(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM holds WHERE expires_at").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("SELECT 1 FROM bookings").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnError(errNoRows())
	mock.ExpectQuery("SELECT session_id FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnRows(pgxmock.NewRows([]string{"session_id"}).AddRow("someone-else"))
	mock.ExpectRollback()

	h := Hold{Booking: testBooking(), SessionID: "s1"}
	ok, reason := store.CreateHold(context.Background(), h)
	if ok || reason != ReasonHeldByOther {
		t.Fatalf("hold = %v %q", ok, reason)
	}
}

func TestPostgresPromoteHold(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	code := "KBENH"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT session_id, expires_at, department_code FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "expires_at", "department_code"}).
			AddRow("s1", now.Add(time.Minute), &code))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("H1", "Khám Bệnh", "Bs A", "2025-01-15", "08:00", "KBENH").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	ok, reason := store.PromoteHold(context.Background(), "s1", testBooking())
	if !ok || reason != ReasonBooked {
		t.Fatalf("promote = %v %q", ok, reason)
	}
	if store.Version() != 1 {
		t.Errorf("version = %d, want 1", store.Version())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresPromoteHoldExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	var nilCode *string
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT session_id, expires_at, department_code FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "expires_at", "department_code"}).
			AddRow("s1", now.Add(-time.Second), nilCode))
	mock.ExpectExec("DELETE FROM holds").
		WithArgs("H1", "Bs A", "2025-01-15", "08:00").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	ok, reason := store.PromoteHold(context.Background(), "s1", testBooking())
	if ok || reason != ReasonHoldExpired {
		t.Fatalf("promote = %v %q", ok, reason)
	}
}

func TestPostgresBookingsSnapshotByCodes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("H1", "2025-01-15").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT department_code, doctor_name, slot_time FROM bookings").
		WithArgs("H1", "2025-01-15", []string{"KBENH"}).
		WillReturnRows(pgxmock.NewRows([]string{"department_code", "doctor_name", "slot_time"}).
			AddRow("KBENH", "Bs A", "08:00").
			AddRow("KBENH", "Bs A", "08:20"))

	snap, err := store.BookingsSnapshotByCodes(context.Background(), "H1", []string{"KBENH"}, "2025-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if snap.LegacyRowsIgnored != 2 {
		t.Errorf("legacy_rows_ignored = %d", snap.LegacyRowsIgnored)
	}
	if len(snap.Bookings["KBENH"]["Bs A"]) != 2 {
		t.Errorf("bookings = %v", snap.Bookings)
	}
}

func TestPostgresBackfillDepartmentCodes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE bookings SET department_code").
		WithArgs("KBENH", "H1", "Khám Bệnh").
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))

	updated, err := store.BackfillDepartmentCodes(context.Background(), "H1", map[string]string{"Khám Bệnh": "KBENH"})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 5 {
		t.Fatalf("updated = %d, want 5", updated)
	}
}

func errNoRows() error {
	return pgx.ErrNoRows
}
