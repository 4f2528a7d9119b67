package handlers

import (
	"net/http"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/visits"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// VisitHandler serves the reverse visit lookup used by check-in desks.
type VisitHandler struct {
	store  visits.Store
	logger *logging.Logger
}

func NewVisitHandler(store visits.Store, logger *logging.Logger) *VisitHandler {
	if store == nil {
		panic("handlers: visit store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VisitHandler{store: store, logger: logger}
}

// VisitDetail resolves a booking key to the persisted visit sheet. The first
// attempt matches the full key; a miss retries with hospital and date
// unconstrained, because the finalizer may have stored a differently shaped
// booking block.
// Route: GET /api/visit_detail?hospital_code=&date=&doctor_name=&slot_time=
func (h *VisitHandler) VisitDetail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hospital := strings.TrimSpace(q.Get("hospital_code"))
	date := strings.TrimSpace(q.Get("date"))
	doctor := strings.TrimSpace(q.Get("doctor_name"))
	slot := strings.TrimSpace(q.Get("slot_time"))
	if doctor == "" || slot == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_doctor_or_slot")
		return
	}

	visit, err := h.store.FindVisitByBooking(r.Context(), hospital, date, doctor, slot)
	if err != nil {
		h.logger.Error("visit lookup failed", "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "db_error")
		return
	}
	if visit == nil && (hospital != "" || date != "") {
		visit, err = h.store.FindVisitByBooking(r.Context(), "", "", doctor, slot)
		if err != nil {
			h.logger.Error("visit lookup failed", "error", err)
			writeErrorKind(w, http.StatusInternalServerError, "db_error")
			return
		}
	}
	if visit == nil {
		writeErrorKind(w, http.StatusNotFound, "visit_not_found")
		return
	}
	writeJSON(w, http.StatusOK, visit)
}
