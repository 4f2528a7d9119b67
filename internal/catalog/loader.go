package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// rawDepartment is one department as parsed from disk, before roster
// de-duplication. codeKeyed marks entries that came from the code-centric
// shape, where the map key is a department code rather than a display name.
type rawDepartment struct {
	name      string
	doctors   []string
	codeKeyed bool
}

type rawMeta struct {
	hospitalName string
	departments  map[string]rawDepartment
}

// loadDepartmentMap reads the hospital's files in precedence order:
// curated grouped catalog first, then raw files in each data dir, finally a
// generic deep scan of the raw JSON for anything doctor-shaped.
func (c *Catalog) loadDepartmentMap(hospitalCode string) rawMeta {
	out := rawMeta{departments: map[string]rawDepartment{}}

	if c.catalogDir != "" {
		grouped := filepath.Join(c.catalogDir, hospitalCode+".grouped.json")
		if obj, ok := readJSON(grouped); ok {
			if m := parseGroupedCatalog(obj); len(m) > 0 {
				out.departments = m
				out.hospitalName = hospitalName(obj)
				return out
			}
		}
	}

	for _, dir := range c.dataDirs {
		path := filepath.Join(dir, hospitalCode+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var node any
		if err := json.Unmarshal(data, &node); err != nil {
			c.logger.Warn("hospital file parse error", "path", path, "error", err)
			continue
		}
		if m := parseRawHospital(node); len(m) > 0 {
			out.departments = m
			out.hospitalName = hospitalName(node)
			return out
		}
	}

	// Nothing matched a known shape; walk the raw JSON generically.
	for _, dir := range c.dataDirs {
		path := filepath.Join(dir, hospitalCode+".json")
		if node, ok := readJSON(path); ok {
			if m := genericExtract(node); len(m) > 0 {
				out.departments = m
				out.hospitalName = hospitalName(node)
				return out
			}
		}
	}
	return out
}

func readJSON(path string) (any, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var node any
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, false
	}
	return node, true
}

func hospitalName(node any) string {
	obj, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := obj["hospital_name"].(string); ok {
		return CleanDisplayName(s)
	}
	if s, ok := obj["name"].(string); ok {
		return CleanDisplayName(s)
	}
	return ""
}

// parseGroupedCatalog handles the curated catalog shape: an object whose
// "departments" field is either name -> [doctor objects] or a list of
// {name, doctors} entries.
func parseGroupedCatalog(node any) map[string]rawDepartment {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	out := map[string]rawDepartment{}
	switch deps := obj["departments"].(type) {
	case map[string]any:
		for key, v := range deps {
			list, ok := v.([]any)
			if !ok {
				continue
			}
			out[NormalizeDepartment(key)] = rawDepartment{doctors: doctorNames(list)}
		}
	case []any:
		for _, v := range deps {
			dep, ok := v.(map[string]any)
			if !ok {
				continue
			}
			dname := firstString(dep, "name", "department", "code")
			if dname == "" {
				continue
			}
			docs, _ := pick(dep, "doctors", "Doctors").([]any)
			out[NormalizeDepartment(dname)] = rawDepartment{doctors: doctorNames(docs)}
		}
	}
	return out
}

// parseRawHospital handles the raw data-dir shapes in order: a bare list of
// doctor objects, the code-keyed departments object, a legacy departments
// list, and finally a flat doctors list.
func parseRawHospital(node any) map[string]rawDepartment {
	out := map[string]rawDepartment{}

	if list, ok := node.([]any); ok {
		for _, v := range list {
			doc, ok := v.(map[string]any)
			if !ok {
				continue
			}
			dep := firstString(doc, "department", "Department", "specialty", "Specialty")
			name := firstString(doc, "name", "Name")
			if dep == "" || name == "" {
				continue
			}
			key := NormalizeDepartment(dep)
			ent := out[key]
			ent.doctors = append(ent.doctors, name)
			out[key] = ent
		}
		return out
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return out
	}

	if depDict, ok := obj["departments"].(map[string]any); ok {
		for code, v := range depDict {
			depObj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			rawName := firstString(depObj, "name", "department")
			if rawName == "" {
				rawName = code
			}
			disp := norm.NFC.String(rawName)
			docs, _ := depObj["doctors"].([]any)
			out[code] = rawDepartment{name: disp, doctors: doctorNames(docs), codeKeyed: true}
		}
	}
	if depList, ok := obj["departments"].([]any); ok && len(out) == 0 {
		for _, v := range depList {
			depObj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			dname := firstString(depObj, "name", "department", "code")
			if dname == "" {
				continue
			}
			docs, _ := pick(depObj, "doctors", "Doctors").([]any)
			out[NormalizeDepartment(dname)] = rawDepartment{doctors: doctorNames(docs)}
		}
	}
	if docList, ok := obj["doctors"].([]any); ok && len(out) == 0 {
		for _, v := range docList {
			doc, ok := v.(map[string]any)
			if !ok {
				continue
			}
			dep := firstString(doc, "department", "specialty")
			name := firstString(doc, "name")
			if dep == "" || name == "" {
				continue
			}
			key := NormalizeDepartment(dep)
			ent := out[key]
			ent.doctors = append(ent.doctors, name)
			out[key] = ent
		}
	}
	return out
}

const maxGenericDoctors = 10000

// genericExtract walks arbitrary JSON and collects anything doctor-shaped:
// an object with a "name" plus a department-like field, or a name with
// contact/title fields inheriting the department of its enclosing context.
func genericExtract(root any) map[string]rawDepartment {
	out := map[string]rawDepartment{}
	count := 0

	type frame struct {
		node any
		dept string
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 && count < maxGenericDoctors {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch node := f.node.(type) {
		case map[string]any:
			ctx := detectDept(node)
			if ctx == "" {
				ctx = f.dept
			}
			if isDoctorObj(node) {
				dep := firstString(node, "department", "specialty", "speciality", "khoa")
				if dep == "" {
					dep = ctx
				}
				if dep != "" {
					name := firstString(node, "name", "Name")
					key := NormalizeDepartment(dep)
					ent := out[key]
					ent.doctors = append(ent.doctors, name)
					out[key] = ent
					count++
				}
			}
			for _, v := range node {
				switch v.(type) {
				case map[string]any, []any:
					stack = append(stack, frame{node: v, dept: ctx})
				}
			}
		case []any:
			for _, item := range node {
				switch item.(type) {
				case map[string]any, []any:
					stack = append(stack, frame{node: item, dept: f.dept})
				}
			}
		}
	}
	return out
}

func detectDept(obj map[string]any) string {
	if s := firstString(obj, "department", "dept_name", "khoa", "specialty", "speciality"); s != "" {
		return s
	}
	// an object carrying a name and a doctors list is itself a department
	if _, hasDocs := obj["doctors"].([]any); hasDocs {
		if s, ok := obj["name"].(string); ok {
			return s
		}
	}
	return ""
}

func isDoctorObj(obj map[string]any) bool {
	if _, ok := obj["name"]; !ok {
		return false
	}
	for _, k := range []string{"department", "specialty", "speciality", "khoa"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	if _, nested := obj["departments"]; nested {
		return false
	}
	for _, k := range []string{"position", "title", "phone", "email"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func doctorNames(list []any) []string {
	var names []string
	for _, v := range list {
		switch d := v.(type) {
		case map[string]any:
			if name := firstString(d, "name", "Name"); name != "" {
				names = append(names, name)
			}
		case string:
			if d != "" {
				names = append(names, d)
			}
		}
	}
	return names
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func pick(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
