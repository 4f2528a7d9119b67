package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// uniqueViolation is the Postgres error code for a primary-key collision.
const uniqueViolation = "23505"

// pgdb is the subset of pgxpool.Pool the store needs (allows pgxmock in tests).
type pgdb interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is the durable Store. A single process-wide mutex serializes
// every mutation; readers go straight to the pool and observe committed rows.
type PostgresStore struct {
	db     pgdb
	logger *logging.Logger

	writeMu sync.Mutex
	version atomic.Uint64

	now func() time.Time
}

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(db pgdb, logger *logging.Logger) *PostgresStore {
	if db == nil {
		panic("schedule: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{db: db, logger: logger, now: time.Now}
}

func (s *PostgresStore) Version() uint64 {
	return s.version.Load()
}

func (s *PostgresStore) InsertBooking(ctx context.Context, b Booking) (bool, string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (hospital_code, department, doctor_name, date, slot_time, department_code)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, b.HospitalCode, b.Department, b.DoctorName, b.Date, b.SlotTime, b.DepartmentCode)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ReasonAlreadyBooked
		}
		s.logger.Error("booking insert failed", "error", err, "hospital_code", b.HospitalCode)
		return false, ReasonDBError
	}
	s.version.Add(1)
	return true, ReasonBooked
}

func (s *PostgresStore) CreateHold(ctx context.Context, h Hold) (bool, string) {
	now := s.now()
	ttl := h.TTL
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	if ttl < MinHoldTTL {
		ttl = MinHoldTTL
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("hold tx begin failed", "error", err)
		return false, ReasonDBError
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM holds WHERE expires_at <= $1`, now); err != nil {
		s.logger.Error("hold sweep failed", "error", err)
		return false, ReasonDBError
	}

	var one int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM bookings
		WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3 AND slot_time = $4
	`, h.HospitalCode, h.DoctorName, h.Date, h.SlotTime).Scan(&one)
	if err == nil {
		return false, ReasonAlreadyBooked
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("hold booking check failed", "error", err)
		return false, ReasonDBError
	}

	var owner string
	err = tx.QueryRow(ctx, `
		SELECT session_id FROM holds
		WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3 AND slot_time = $4
	`, h.HospitalCode, h.DoctorName, h.Date, h.SlotTime).Scan(&owner)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("hold owner check failed", "error", err)
		return false, ReasonDBError
	}
	if err == nil && owner != h.SessionID {
		return false, ReasonHeldByOther
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO holds (hospital_code, department, doctor_name, date, slot_time, session_id, held_at, expires_at, department_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		ON CONFLICT (hospital_code, doctor_name, date, slot_time)
		DO UPDATE SET department = EXCLUDED.department,
		              session_id = EXCLUDED.session_id,
		              held_at = EXCLUDED.held_at,
		              expires_at = EXCLUDED.expires_at,
		              department_code = EXCLUDED.department_code
	`, h.HospitalCode, h.Department, h.DoctorName, h.Date, h.SlotTime, h.SessionID, now, now.Add(ttl), h.DepartmentCode)
	if err != nil {
		s.logger.Error("hold upsert failed", "error", err)
		return false, ReasonDBError
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("hold commit failed", "error", err)
		return false, ReasonDBError
	}
	return true, ReasonHeld
}

func (s *PostgresStore) CancelHoldsForSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.Exec(ctx, `DELETE FROM holds WHERE session_id = $1`, sessionID); err != nil {
		s.logger.Error("cancel holds failed", "error", err, "session_id", sessionID)
		return err
	}
	return nil
}

func (s *PostgresStore) PromoteHold(ctx context.Context, sessionID string, b Booking) (bool, string) {
	now := s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("promote tx begin failed", "error", err)
		return false, ReasonDBError
	}
	defer tx.Rollback(ctx)

	var (
		owner     string
		expiresAt time.Time
		holdCode  *string
	)
	err = tx.QueryRow(ctx, `
		SELECT session_id, expires_at, department_code FROM holds
		WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3 AND slot_time = $4
	`, b.HospitalCode, b.DoctorName, b.Date, b.SlotTime).Scan(&owner, &expiresAt, &holdCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ReasonNoHold
	}
	if err != nil {
		s.logger.Error("promote hold lookup failed", "error", err)
		return false, ReasonDBError
	}
	if owner != sessionID {
		return false, ReasonHeldByOther
	}
	if !expiresAt.After(now) {
		_, _ = tx.Exec(ctx, `
			DELETE FROM holds
			WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3 AND slot_time = $4
		`, b.HospitalCode, b.DoctorName, b.Date, b.SlotTime)
		if err := tx.Commit(ctx); err != nil {
			s.logger.Error("stale hold cleanup commit failed", "error", err)
		}
		return false, ReasonHoldExpired
	}

	finalCode := b.DepartmentCode
	if finalCode == "" && holdCode != nil {
		finalCode = *holdCode
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (hospital_code, department, doctor_name, date, slot_time, department_code)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, b.HospitalCode, b.Department, b.DoctorName, b.Date, b.SlotTime, finalCode)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ReasonAlreadyBooked
		}
		s.logger.Error("promote insert failed", "error", err)
		return false, ReasonDBError
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM holds
		WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3 AND slot_time = $4
	`, b.HospitalCode, b.DoctorName, b.Date, b.SlotTime); err != nil {
		s.logger.Error("promote hold delete failed", "error", err)
		return false, ReasonDBError
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("promote commit failed", "error", err)
		return false, ReasonDBError
	}
	s.version.Add(1)
	return true, ReasonBooked
}

func (s *PostgresStore) BookedSlotsForDoctor(ctx context.Context, hospitalCode, doctorName, date string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT slot_time FROM bookings
		WHERE hospital_code = $1 AND doctor_name = $2 AND date = $3
		ORDER BY slot_time
	`, hospitalCode, doctorName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BookingsSnapshot(ctx context.Context, hospitalCode string, departments []string, date string) (NameSnapshot, error) {
	snap := NameSnapshot{
		HospitalCode: hospitalCode,
		Date:         date,
		Version:      s.Version(),
		Bookings:     map[string]DoctorSlots{},
	}
	if len(departments) == 0 {
		return snap, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT department, doctor_name, slot_time FROM bookings
		WHERE hospital_code = $1 AND date = $2 AND department = ANY($3)
		ORDER BY department, doctor_name, slot_time
	`, hospitalCode, date, departments)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var dep, doctor, slot string
		if err := rows.Scan(&dep, &doctor, &slot); err != nil {
			return snap, err
		}
		addSlot(snap.Bookings, dep, doctor, slot)
	}
	return snap, rows.Err()
}

func (s *PostgresStore) BookingsSnapshotByCodes(ctx context.Context, hospitalCode string, codes []string, date string) (CodeSnapshot, error) {
	snap := CodeSnapshot{
		HospitalCode: hospitalCode,
		Date:         date,
		Version:      s.Version(),
		Bookings:     map[string]DoctorSlots{},
	}
	clean := make([]string, 0, len(codes))
	for _, c := range codes {
		if c != "" {
			clean = append(clean, c)
		}
	}
	if len(clean) == 0 {
		return snap, nil
	}

	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE hospital_code = $1 AND date = $2 AND department_code IS NULL
	`, hospitalCode, date).Scan(&snap.LegacyRowsIgnored); err != nil {
		s.logger.Warn("legacy row count failed", "error", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT department_code, doctor_name, slot_time FROM bookings
		WHERE hospital_code = $1 AND date = $2 AND department_code = ANY($3)
		ORDER BY department_code, doctor_name, slot_time
	`, hospitalCode, date, clean)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, doctor, slot string
		if err := rows.Scan(&code, &doctor, &slot); err != nil {
			return snap, err
		}
		addSlot(snap.Bookings, code, doctor, slot)
	}
	return snap, rows.Err()
}

func (s *PostgresStore) BlockedSnapshotByCodes(ctx context.Context, hospitalCode string, codes []string, date string) (map[string]DoctorSlots, error) {
	out := map[string]DoctorSlots{}
	clean := make([]string, 0, len(codes))
	for _, c := range codes {
		if c != "" {
			clean = append(clean, c)
		}
	}
	if len(clean) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT department_code, doctor_name, slot_time FROM bookings
		WHERE hospital_code = $1 AND date = $2 AND department_code = ANY($3)
		UNION
		SELECT department_code, doctor_name, slot_time FROM holds
		WHERE hospital_code = $1 AND date = $2 AND department_code = ANY($3) AND expires_at > $4
	`, hospitalCode, date, clean, s.now())
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, doctor, slot string
		if err := rows.Scan(&code, &doctor, &slot); err != nil {
			return out, err
		}
		addSlot(out, code, doctor, slot)
	}
	sortSlots(out)
	return out, rows.Err()
}

func (s *PostgresStore) BackfillDepartmentCodes(ctx context.Context, hospitalCode string, nameToCode map[string]string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated := 0
	for name, code := range nameToCode {
		tag, err := s.db.Exec(ctx, `
			UPDATE bookings SET department_code = $1
			WHERE hospital_code = $2 AND department_code IS NULL AND department = $3
		`, code, hospitalCode, name)
		if err != nil {
			s.logger.Warn("backfill update failed", "error", err, "department", name)
			continue
		}
		updated += int(tag.RowsAffected())
	}
	return updated, nil
}

func (s *PostgresStore) HospitalsWithBookings(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT hospital_code FROM bookings ORDER BY hospital_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
