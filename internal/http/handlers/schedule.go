package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// ScheduleHandler serves availability snapshots and the booking write path.
type ScheduleHandler struct {
	scheduler *schedule.Scheduler
	logger    *logging.Logger
}

func NewScheduleHandler(s *schedule.Scheduler, logger *logging.Logger) *ScheduleHandler {
	if s == nil {
		panic("handlers: scheduler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ScheduleHandler{scheduler: s, logger: logger}
}

// Overview returns per-doctor availability for the requested departments.
// Route: GET /api/overview?hospital_code=&departments=&date=
func (h *ScheduleHandler) Overview(w http.ResponseWriter, r *http.Request) {
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	if hospital == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return
	}
	departments := normalizeAll(queryCSV(r, "departments"))
	if len(departments) == 0 {
		writeErrorKind(w, http.StatusBadRequest, "no_departments")
		return
	}
	date := dateOrToday(r)
	if !schedule.ValidDate(date) {
		writeErrorKind(w, http.StatusBadRequest, "invalid_date_or_slot_format")
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Overview(r.Context(), hospital, departments, date))
}

// Bookings returns the name-keyed bookings snapshot. When the caller's since
// matches the current version the body is just {unchanged:true, version}.
// Route: GET /api/bookings?hospital_code=&departments=&date=&since=
func (h *ScheduleHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	if hospital == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return
	}
	departments := normalizeAll(queryCSV(r, "departments"))
	if len(departments) == 0 {
		writeErrorKind(w, http.StatusBadRequest, "no_departments")
		return
	}

	if unchanged, version := h.sinceUnchanged(r); unchanged {
		writeJSON(w, http.StatusOK, map[string]any{"unchanged": true, "version": version})
		return
	}

	snap, err := h.scheduler.Store().BookingsSnapshot(r.Context(), hospital, departments, dateOrToday(r))
	if err != nil {
		h.logger.Error("bookings snapshot failed", "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// BookingsByCode returns the code-keyed snapshot, skipping legacy null-code
// rows.
// Route: GET /api/bookings_by_code?hospital_code=&department_codes=&date=&since=
func (h *ScheduleHandler) BookingsByCode(w http.ResponseWriter, r *http.Request) {
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	if hospital == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return
	}
	codes := queryCSV(r, "department_codes")
	if len(codes) == 0 {
		writeErrorKind(w, http.StatusBadRequest, "no_department_codes")
		return
	}

	if unchanged, version := h.sinceUnchanged(r); unchanged {
		writeJSON(w, http.StatusOK, map[string]any{"unchanged": true, "version": version})
		return
	}

	snap, err := h.scheduler.Store().BookingsSnapshotByCodes(r.Context(), hospital, codes, dateOrToday(r))
	if err != nil {
		h.logger.Error("bookings snapshot failed", "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Book inserts a confirmed booking through the name path.
// Route: POST /api/book
func (h *ScheduleHandler) Book(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBookRequest(w, r)
	if !ok {
		return
	}
	if req.Department == "" {
		writeErrorKind(w, http.StatusBadRequest, "no_departments")
		return
	}
	h.book(w, r, req)
}

// BookByCode inserts a booking keyed by department code; the display name is
// resolved from the catalog when omitted.
// Route: POST /api/book_by_code
func (h *ScheduleHandler) BookByCode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBookRequest(w, r)
	if !ok {
		return
	}
	if req.DepartmentCode == "" {
		writeErrorKind(w, http.StatusBadRequest, "no_department_codes")
		return
	}
	if req.Department == "" {
		if meta := h.scheduler.Catalog().Meta(req.HospitalCode); meta != nil {
			if info, found := meta.DepartmentsByCode[req.DepartmentCode]; found {
				req.Department = info.Name
			}
		}
	}
	h.book(w, r, req)
}

func (h *ScheduleHandler) decodeBookRequest(w http.ResponseWriter, r *http.Request) (schedule.BookRequest, bool) {
	var req schedule.BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "invalid_json")
		return req, false
	}
	if req.HospitalCode == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return req, false
	}
	if !schedule.ValidDate(req.Date) {
		writeErrorKind(w, http.StatusBadRequest, "invalid_date_or_slot_format")
		return req, false
	}
	return req, true
}

func (h *ScheduleHandler) book(w http.ResponseWriter, r *http.Request, req schedule.BookRequest) {
	ok, reason := h.scheduler.BookSlot(r.Context(), req)
	if !ok {
		status := http.StatusBadRequest
		if reason == schedule.ReasonDBError {
			status = http.StatusInternalServerError
		}
		writeErrorKind(w, status, reason)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"reason":  reason,
		"version": h.scheduler.Store().Version(),
	})
}

// Backfill populates department codes on legacy rows.
// Route: POST /api/backfill_department_codes?hospital_code=
func (h *ScheduleHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	summary, err := h.scheduler.Backfill(r.Context(), hospital)
	if err != nil {
		h.logger.Error("backfill failed", "error", err)
		writeErrorKind(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ScheduleHandler) sinceUnchanged(r *http.Request) (bool, uint64) {
	raw := strings.TrimSpace(r.URL.Query().Get("since"))
	version := h.scheduler.Store().Version()
	if raw == "" {
		return false, version
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return false, version
	}
	return since == version, version
}

func normalizeAll(departments []string) []string {
	out := make([]string, 0, len(departments))
	for _, d := range departments {
		if n := catalog.NormalizeDepartment(d); n != "" {
			out = append(out, n)
		}
	}
	return out
}
