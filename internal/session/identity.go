package session

import "github.com/techxpo/clinic-kiosk/internal/visits"

// Identity is the session-scoped identity state. Draft fields accumulate from
// low-confidence speech recognition; confirmation freezes them.
type Identity struct {
	DraftName       string
	DraftPhone      string
	DraftConfidence float64

	ConfirmedName  string
	ConfirmedPhone string
	Confirmed      bool
}

// Propose applies a partial draft update. Updates only land when confidence
// is at least the previous draft confidence. Returns false when the update
// was discarded.
func (id *Identity) Propose(name, phone string, confidence float64) bool {
	if id.Confirmed {
		return false
	}
	if confidence < id.DraftConfidence {
		return false
	}
	if name != "" {
		id.DraftName = name
	}
	if phone != "" {
		id.DraftPhone = phone
	}
	id.DraftConfidence = confidence
	return true
}

// Confirm promotes drafts (or the explicit overrides) to confirmed identity.
// Requires a name and a syntactically valid phone.
func (id *Identity) Confirm(name, phone string) (ok bool, reason string) {
	if name == "" {
		name = id.DraftName
	}
	if phone == "" {
		phone = id.DraftPhone
	}
	if name == "" {
		return false, "missing_name"
	}
	if !visits.ValidPhone(phone) {
		return false, "invalid_phone"
	}
	id.ConfirmedName = name
	id.ConfirmedPhone = phone
	id.Confirmed = true
	return true, ""
}

// Changed reports whether the given values differ from the confirmed identity.
// Empty arguments mean "no change for that field".
func (id *Identity) Changed(name, phone string) bool {
	if !id.Confirmed {
		return false
	}
	if name != "" && name != id.ConfirmedName {
		return true
	}
	if phone != "" && phone != id.ConfirmedPhone {
		return true
	}
	return false
}
