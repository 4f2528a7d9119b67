package visits

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// phoneRE matches a valid Vietnamese mobile number: ten digits, leading 0,
// mobile prefix.
var phoneRE = regexp.MustCompile(`^0(3|5|7|8|9)\d{8}$`)

// ValidPhone reports whether the string is a syntactically valid mobile phone.
func ValidPhone(phone string) bool {
	return phoneRE.MatchString(strings.TrimSpace(phone))
}

// NormalizePhone strips everything but digits. An empty result becomes
// "unknown" so the customer key is never blank.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// CustomerIDFromPhone derives the stable customer id: "CUS-" plus the first
// ten hex chars of the SHA-1 of the normalized phone.
func CustomerIDFromPhone(phone string) string {
	sum := sha1.Sum([]byte(NormalizePhone(phone)))
	return "CUS-" + hex.EncodeToString(sum[:])[:10]
}

// Customer is one patient keyed by normalized phone. Facts accumulate across
// visits; LastSummary is the most recent visit summary.
type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Facts       string `json:"facts"`
	LastSummary string `json:"last_summary"`
}

// Visit is one persisted visit row with its opaque payload document.
type Visit struct {
	VisitID    string         `json:"visit_id"`
	CustomerID string         `json:"customer_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Payload    map[string]any `json:"payload"`
	Summary    string         `json:"summary"`
	Facts      string         `json:"facts"`
}

// FactsSummary is a customer's accumulated profile.
type FactsSummary struct {
	Facts       string `json:"facts"`
	LastSummary string `json:"last_summary"`
}

// Store persists customers and visits.
type Store interface {
	// GetOrCreateCustomer upserts on normalized phone. The stored display
	// name is refreshed on every call so the latest spelling wins.
	GetOrCreateCustomer(ctx context.Context, name, phone string) (customerID string, created bool, err error)

	// CustomerIDByPhone looks up without creating; "" when absent.
	CustomerIDByPhone(ctx context.Context, phone string) (string, error)

	// SaveVisit writes a visit row and returns its id.
	SaveVisit(ctx context.Context, customerID string, payload map[string]any, summary, facts string) (string, error)

	// RecentVisits lists a customer's visits, newest first.
	RecentVisits(ctx context.Context, customerID string, limit int) ([]Visit, error)

	// FactsSummary reads the accumulated facts and last visit summary.
	FactsSummary(ctx context.Context, customerID string) (FactsSummary, error)

	// UpdateFactsSummary replaces the accumulated facts and last summary.
	UpdateFactsSummary(ctx context.Context, customerID, facts, summary string) error

	// FindVisitByBooking reverse-looks-up the latest visit matching the
	// booking tuple. Empty hospital or date leaves that field unconstrained.
	// Returns nil when nothing matches.
	FindVisitByBooking(ctx context.Context, hospitalCode, date, doctorName, slotTime string) (*Visit, error)
}

// candidateScanLimit bounds the reverse-lookup scan to the most recent rows.
const candidateScanLimit = 15

// matchVisit checks a payload against the booking tuple: exact
// booking_index match first, then a broader scan of candidate fields.
func matchVisit(v Visit, hospitalCode, date, doctorName, slotTime string) bool {
	if idx, ok := v.Payload["booking_index"].(map[string]any); ok {
		if (hospitalCode == "" || str(idx["hospital_code"]) == hospitalCode) &&
			(date == "" || str(idx["date"]) == date) &&
			str(idx["doctor_name"]) == doctorName &&
			str(idx["slot_time"]) == slotTime {
			return true
		}
	}

	booking, _ := v.Payload["booking"].(map[string]any)
	chosen, _ := booking["chosen"].(map[string]any)

	docCandidates := []string{str(booking["doctor_name"]), str(chosen["doctor_name"]), str(v.Payload["doctor_name"])}
	slotCandidates := []string{
		str(booking["slot_time"]), str(chosen["slot_time"]),
		str(booking["appointment_time"]), str(v.Payload["appointment_time"]), str(v.Payload["slot_time"]),
	}
	hospCandidates := []string{str(booking["hospital_code"]), str(chosen["hospital_code"]), str(v.Payload["hospital_code"])}
	dateCandidates := []string{str(booking["date"]), str(chosen["date"]), str(v.Payload["date"])}
	if !v.CreatedAt.IsZero() {
		dateCandidates = append(dateCandidates, v.CreatedAt.Format("2006-01-02"))
	}

	return anyEquals(docCandidates, doctorName) &&
		anyEquals(slotCandidates, slotTime) &&
		(hospitalCode == "" || anyEquals(hospCandidates, hospitalCode) || allEmpty(hospCandidates)) &&
		(date == "" || anyEquals(dateCandidates, date) || allEmpty(dateCandidates))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func anyEquals(candidates []string, want string) bool {
	for _, c := range candidates {
		if c != "" && c == want {
			return true
		}
	}
	return false
}

func allEmpty(candidates []string) bool {
	for _, c := range candidates {
		if c != "" {
			return false
		}
	}
	return true
}
