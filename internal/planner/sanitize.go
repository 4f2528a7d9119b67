package planner

import (
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
)

// Option is one bookable proposal emitted by stage 2. hospital/department
// display names are re-derived from the catalog during sanitization and must
// not be trusted as reasoner output.
type Option struct {
	Hospital       string   `json:"hospital,omitempty"`
	HospitalCode   string   `json:"hospital_code,omitempty"`
	Department     string   `json:"department,omitempty"`
	DepartmentCode string   `json:"department_code,omitempty"`
	DoctorName     string   `json:"doctor_name"`
	SlotTime       string   `json:"slot_time"`
	Room           string   `json:"room,omitempty"`
	Score          *float64 `json:"score,omitempty"`
}

// Slot returns the HH:MM portion of SlotTime.
func (o Option) Slot() string {
	fields := strings.Fields(o.SlotTime)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Result is the sanitized outcome of a planner run.
type Result struct {
	Options     []Option `json:"options"`
	Chosen      *Option  `json:"chosen"`
	Rationale   string   `json:"rationale,omitempty"`
	PatientName string   `json:"patient_name,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	SpeakText   string   `json:"speak_text,omitempty"`
}

type allowedDept struct {
	name    string
	doctors map[string]bool
}

// SanitizeOptions validates every option in res against the schedule document
// that was fed to the reasoner in the same turn, drops anything not backed by
// a free slot, and canonicalizes display names. If chosen does not survive it
// is reassigned to the first surviving option, or nil when nothing survives.
func SanitizeOptions(doc *ScheduleDoc, res *Result, canonical map[string]map[string]string) {
	hospAllowed := map[string]map[string]allowedDept{}
	hospitalNames := map[string]string{}
	freeMap := map[[3]string]map[string]bool{}
	for _, h := range doc.Hospitals {
		if h.HospitalCode == "" {
			continue
		}
		name := h.HospitalName
		if name == "" {
			name = h.HospitalCode
		}
		hospitalNames[h.HospitalCode] = catalog.CleanDisplayName(name)
		depMap := map[string]allowedDept{}
		for _, dep := range h.Departments {
			if dep.DepartmentCode == "" {
				continue
			}
			doctors := map[string]bool{}
			for _, d := range dep.Doctors {
				if d.Name == "" {
					continue
				}
				doctors[d.Name] = true
				slots := map[string]bool{}
				for _, s := range d.FreeSlots {
					slots[s] = true
				}
				freeMap[[3]string{h.HospitalCode, dep.DepartmentCode, d.Name}] = slots
			}
			depName := dep.DepartmentName
			if depName == "" {
				depName = dep.DepartmentCode
			}
			depMap[dep.DepartmentCode] = allowedDept{name: depName, doctors: doctors}
		}
		hospAllowed[h.HospitalCode] = depMap
	}

	var valid []Option
	for _, o := range res.Options {
		if clean, ok := sanitizeOne(o, hospAllowed, hospitalNames, freeMap, canonical); ok {
			valid = append(valid, clean)
		}
	}
	res.Options = valid

	if res.Chosen != nil {
		if clean, ok := sanitizeOne(*res.Chosen, hospAllowed, hospitalNames, freeMap, canonical); ok && optionInSet(clean, valid) {
			res.Chosen = &clean
		} else if len(valid) > 0 {
			chosen := valid[0]
			res.Chosen = &chosen
		} else {
			res.Chosen = nil
		}
	}
}

func sanitizeOne(o Option, hospAllowed map[string]map[string]allowedDept, hospitalNames map[string]string, freeMap map[[3]string]map[string]bool, canonical map[string]map[string]string) (Option, bool) {
	hosp := o.HospitalCode
	if hosp == "" {
		hosp = o.Hospital
	}
	depMap, ok := hospAllowed[hosp]
	if !ok {
		return Option{}, false
	}
	dep, ok := depMap[o.DepartmentCode]
	if !ok {
		return Option{}, false
	}
	if !dep.doctors[o.DoctorName] {
		return Option{}, false
	}
	if slot := o.Slot(); slot != "" && !freeMap[[3]string{hosp, o.DepartmentCode, o.DoctorName}][slot] {
		return Option{}, false
	}

	o.HospitalCode = hosp
	name := ""
	if canonical != nil {
		name = canonical[hosp][o.DepartmentCode]
	}
	if name == "" {
		name = dep.name
	}
	if name != "" {
		o.Department = catalog.CleanDisplayName(name)
	}
	if hn := hospitalNames[hosp]; hn != "" {
		o.Hospital = hn
	}
	return o, true
}

// optionInSet reports whether o identifies the same booking as some entry in
// set. Identity is the booking key, not display metadata.
func optionInSet(o Option, set []Option) bool {
	for _, v := range set {
		if v.HospitalCode == o.HospitalCode &&
			v.DepartmentCode == o.DepartmentCode &&
			v.DoctorName == o.DoctorName &&
			v.SlotTime == o.SlotTime {
			return true
		}
	}
	return false
}
