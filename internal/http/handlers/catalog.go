package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// CatalogHandler serves the hospital catalog read surface.
type CatalogHandler struct {
	catalog *catalog.Catalog
	grid    schedule.Grid
	logger  *logging.Logger
}

func NewCatalogHandler(cat *catalog.Catalog, grid schedule.Grid, logger *logging.Logger) *CatalogHandler {
	if cat == nil {
		panic("handlers: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{catalog: cat, grid: grid, logger: logger}
}

// Hospitals lists every hospital found on disk with its department names.
// Route: GET /api/hospitals
func (h *CatalogHandler) Hospitals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.ListHospitals())
}

// Departments lists one hospital's department display names.
// Route: GET /api/departments?hospital_code=
func (h *CatalogHandler) Departments(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	if code == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return
	}
	meta := h.catalog.Meta(code)
	if meta == nil || len(meta.Departments) == 0 {
		writeErrorKind(w, http.StatusNotFound, "hospital_not_found_or_no_departments")
		return
	}
	deps := make([]string, 0, len(meta.Departments))
	for dep := range meta.Departments {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	writeJSON(w, http.StatusOK, map[string]any{
		"hospital_code": code,
		"hospital_name": meta.HospitalName,
		"departments":   deps,
	})
}

// Meta returns the full catalog view for one hospital, including the
// code-keyed department map and the fixed slot window.
// Route: GET /api/meta?hospital_code=
func (h *CatalogHandler) Meta(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("hospital_code"))
	if code == "" {
		writeErrorKind(w, http.StatusBadRequest, "missing_hospital_code")
		return
	}
	meta := h.catalog.Meta(code)
	if meta == nil || len(meta.Departments) == 0 {
		writeErrorKind(w, http.StatusNotFound, "hospital_not_found_or_no_departments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hospital_code":       code,
		"hospital_name":       meta.HospitalName,
		"departments":         meta.Departments,
		"departments_by_code": meta.DepartmentsByCode,
		"hospital_image":      h.catalog.HospitalImage(code),
		"slot_window": map[string]any{
			"start":        h.grid.Start,
			"end":          h.grid.End,
			"slot_minutes": h.grid.SlotMinutes,
		},
	})
}
