package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// IndexEntry is one department in the aggregate departments index.
type IndexEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DepartmentsIndex maps hospital code to its department entries.
type DepartmentsIndex map[string][]IndexEntry

// LoadDepartmentsIndex reads the departments index, trying the explicit path
// first and then the generated and hand-written aggregates in each data dir.
// Two on-disk shapes are accepted: code -> [names] (legacy) and
// code -> [{code, name}]. Entries missing a code get one derived from the
// name. Returns an empty index when no candidate parses.
func LoadDepartmentsIndex(explicitPath string, dataDirs []string) DepartmentsIndex {
	var candidates []string
	if explicitPath != "" {
		candidates = append(candidates, explicitPath)
	}
	for _, dir := range dataDirs {
		candidates = append(candidates,
			filepath.Join(dir, "departments_index.generated.json"),
			filepath.Join(dir, "departments_index.json"),
		)
	}
	candidates = append(candidates, "departments_index.generated.json", "departments_index.json")

	seen := map[string]bool{}
	for _, p := range candidates {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var raw map[string][]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		idx := DepartmentsIndex{}
		for hosp, arr := range raw {
			var items []IndexEntry
			for _, entry := range arr {
				switch e := entry.(type) {
				case map[string]any:
					name, ok := e["name"].(string)
					if !ok {
						continue
					}
					code := firstString(e, "code", "id", "code_id")
					if code == "" {
						code = DeriveCodeFromName(name)
					}
					items = append(items, IndexEntry{Code: code, Name: name})
				case string:
					items = append(items, IndexEntry{Code: DeriveCodeFromName(e), Name: e})
				}
			}
			if len(items) > 0 {
				idx[hosp] = items
			}
		}
		if len(idx) > 0 {
			return idx
		}
	}
	return DepartmentsIndex{}
}

// CodeNames flattens the index to code -> display name, first occurrence wins.
func (idx DepartmentsIndex) CodeNames() map[string]string {
	out := map[string]string{}
	for _, arr := range idx {
		for _, e := range arr {
			if e.Code != "" && e.Name != "" {
				if _, ok := out[e.Code]; !ok {
					out[e.Code] = e.Name
				}
			}
		}
	}
	return out
}

// CanonicalNames builds hospital -> code -> cleaned display name, used to
// enforce canonical department names on planner output.
func (idx DepartmentsIndex) CanonicalNames() map[string]map[string]string {
	out := map[string]map[string]string{}
	for hosp, arr := range idx {
		inner := map[string]string{}
		for _, e := range arr {
			if e.Code != "" && e.Name != "" {
				inner[e.Code] = CleanDisplayName(e.Name)
			}
		}
		if len(inner) > 0 {
			out[hosp] = inner
		}
	}
	return out
}
