package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// pgdb is the subset of pgxpool.Pool the store needs.
type pgdb interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable visits/customers Store.
type PostgresStore struct {
	db     pgdb
	logger *logging.Logger
}

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(db pgdb, logger *logging.Logger) *PostgresStore {
	if db == nil {
		panic("visits: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) GetOrCreateCustomer(ctx context.Context, name, phone string) (string, bool, error) {
	norm := NormalizePhone(phone)

	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM customers WHERE phone = $1`, norm).Scan(&id)
	if err == nil {
		if _, err := s.db.Exec(ctx, `UPDATE customers SET name = $1 WHERE id = $2`, name, id); err != nil {
			return "", false, fmt.Errorf("visits: customer name refresh failed: %w", err)
		}
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("visits: customer lookup failed: %w", err)
	}

	id = CustomerIDFromPhone(phone)
	_, err = s.db.Exec(ctx, `
		INSERT INTO customers (id, name, phone, facts, last_summary)
		VALUES ($1, $2, $3, '', '')
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name
	`, id, name, norm)
	if err != nil {
		return "", false, fmt.Errorf("visits: customer insert failed: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) CustomerIDByPhone(ctx context.Context, phone string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM customers WHERE phone = $1`, NormalizePhone(phone)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("visits: customer lookup failed: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SaveVisit(ctx context.Context, customerID string, payload map[string]any, summary, facts string) (string, error) {
	visitID := "VIS-" + uuid.NewString()
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("visits: payload marshal failed: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO visits (visit_id, customer_id, created_at, payload, summary, facts_extracted)
		VALUES ($1, $2, NOW(), $3, $4, $5)
	`, visitID, customerID, raw, summary, facts)
	if err != nil {
		return "", fmt.Errorf("visits: visit insert failed: %w", err)
	}
	return visitID, nil
}

func (s *PostgresStore) RecentVisits(ctx context.Context, customerID string, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT visit_id, customer_id, created_at, payload, summary, facts_extracted
		FROM visits
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("visits: recent visits query failed: %w", err)
	}
	defer rows.Close()
	return scanVisits(rows)
}

func (s *PostgresStore) FactsSummary(ctx context.Context, customerID string) (FactsSummary, error) {
	var out FactsSummary
	err := s.db.QueryRow(ctx, `SELECT facts, last_summary FROM customers WHERE id = $1`, customerID).
		Scan(&out.Facts, &out.LastSummary)
	if errors.Is(err, pgx.ErrNoRows) {
		return FactsSummary{}, nil
	}
	if err != nil {
		return FactsSummary{}, fmt.Errorf("visits: facts lookup failed: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateFactsSummary(ctx context.Context, customerID, facts, summary string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE customers SET facts = $1, last_summary = $2 WHERE id = $3
	`, facts, summary, customerID); err != nil {
		return fmt.Errorf("visits: facts update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindVisitByBooking(ctx context.Context, hospitalCode, date, doctorName, slotTime string) (*Visit, error) {
	// coarse text prefilter keeps the scan to a handful of candidate rows;
	// exact verification happens on the parsed payload
	patternSlot := `%"slot_time":%` + slotTime + `%`
	patternDoc := `%"doctor_name":%` + doctorName + `%`
	rows, err := s.db.Query(ctx, `
		SELECT visit_id, customer_id, created_at, payload, summary, facts_extracted
		FROM visits
		WHERE payload::text LIKE $1 AND payload::text LIKE $2
		ORDER BY created_at DESC
		LIMIT $3
	`, patternSlot, patternDoc, candidateScanLimit)
	if err != nil {
		return nil, fmt.Errorf("visits: booking lookup query failed: %w", err)
	}
	defer rows.Close()
	candidates, err := scanVisits(rows)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if matchVisit(candidates[i], hospitalCode, date, doctorName, slotTime) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func scanVisits(rows pgx.Rows) ([]Visit, error) {
	var out []Visit
	for rows.Next() {
		var (
			v   Visit
			raw []byte
			ts  time.Time
		)
		if err := rows.Scan(&v.VisitID, &v.CustomerID, &ts, &raw, &v.Summary, &v.Facts); err != nil {
			return nil, fmt.Errorf("visits: row scan failed: %w", err)
		}
		v.CreatedAt = ts
		if err := json.Unmarshal(raw, &v.Payload); err != nil {
			v.Payload = map[string]any{"raw": string(raw)}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
