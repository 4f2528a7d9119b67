package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// metaTTL bounds how long a cached hospital meta is trusted before the
// source file mtimes are re-checked.
const metaTTL = 60 * time.Second

// mtimeSigMask folds nanosecond mtimes down before XOR-combining them.
const mtimeSigMask = 0xFFFFFFFFFFFF

// DepartmentInfo is the roster of one department under its code.
type DepartmentInfo struct {
	Name    string   `json:"name"`
	Doctors []string `json:"doctors"`
}

// HospitalMeta is the parsed view of one hospital's catalog files.
// Departments is keyed by normalized display name for legacy callers;
// DepartmentsByCode is the authoritative code-centric view.
type HospitalMeta struct {
	HospitalName      string                    `json:"hospital_name,omitempty"`
	Departments       map[string][]string       `json:"departments"`
	DepartmentsByCode map[string]DepartmentInfo `json:"departments_by_code"`
}

// Config holds the data layout for a Catalog.
type Config struct {
	// CatalogDir holds curated <CODE>.grouped.json files; they win over raw files.
	CatalogDir string
	// DataDirs are scanned in order for raw <CODE>.json files.
	DataDirs []string
	// ImageDir holds optional <CODE>.png hospital images.
	ImageDir string
	Logger   *logging.Logger
}

// Catalog loads and caches hospital metadata from JSON files on disk.
// Entries are reused while the TTL holds and the folded mtime signature of
// the source files is unchanged; any edit invalidates on the next lookup.
type Catalog struct {
	catalogDir string
	dataDirs   []string
	imageDir   string
	logger     *logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	meta     *HospitalMeta
	mtimeSig int64
	cachedAt time.Time
}

// New creates a Catalog over the configured directories.
func New(cfg Config) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	dirs := make([]string, 0, len(cfg.DataDirs))
	for _, d := range cfg.DataDirs {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return &Catalog{
		catalogDir: cfg.CatalogDir,
		dataDirs:   dirs,
		imageDir:   cfg.ImageDir,
		logger:     cfg.Logger,
		cache:      map[string]cacheEntry{},
		now:        time.Now,
	}
}

// sourcePaths lists the files that feed a hospital's meta, grouped catalog
// first so it takes precedence in the loader.
func (c *Catalog) sourcePaths(hospitalCode string) []string {
	var paths []string
	if c.catalogDir != "" {
		grouped := filepath.Join(c.catalogDir, hospitalCode+".grouped.json")
		if fileExists(grouped) {
			paths = append(paths, grouped)
		}
	}
	for _, dir := range c.dataDirs {
		raw := filepath.Join(dir, hospitalCode+".json")
		if fileExists(raw) {
			paths = append(paths, raw)
		}
	}
	return paths
}

func mtimeSig(paths []string) int64 {
	var sig int64
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		sig ^= st.ModTime().UnixNano() & mtimeSigMask
	}
	return sig
}

// Meta returns the hospital's metadata, rebuilding from disk when the cache
// entry is stale. Returns nil when no source file exists for the code.
func (c *Catalog) Meta(hospitalCode string) *HospitalMeta {
	paths := c.sourcePaths(hospitalCode)
	if len(paths) == 0 {
		return nil
	}
	sig := mtimeSig(paths)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.cache[hospitalCode]; ok {
		if c.now().Sub(ent.cachedAt) < metaTTL && ent.mtimeSig == sig {
			return ent.meta
		}
	}
	meta := c.buildMeta(hospitalCode)
	c.cache[hospitalCode] = cacheEntry{meta: meta, mtimeSig: sig, cachedAt: c.now()}
	c.logger.Debug("hospital meta rebuilt",
		"hospital_code", hospitalCode,
		"departments", len(meta.Departments))
	return meta
}

func (c *Catalog) buildMeta(hospitalCode string) *HospitalMeta {
	raw := c.loadDepartmentMap(hospitalCode)
	meta := &HospitalMeta{
		HospitalName:      raw.hospitalName,
		Departments:       map[string][]string{},
		DepartmentsByCode: map[string]DepartmentInfo{},
	}
	for key, dep := range raw.departments {
		names := uniqueSortedNames(dep.doctors)
		if dep.codeKeyed {
			meta.DepartmentsByCode[key] = DepartmentInfo{Name: dep.name, Doctors: names}
			if len(names) > 0 {
				meta.Departments[NormalizeDepartment(dep.name)] = names
			}
			continue
		}
		if len(names) > 0 {
			meta.Departments[key] = names
		}
	}
	return meta
}

// DoctorsForDepartments maps normalized department names to doctor rosters,
// restricted to the requested departments.
func (c *Catalog) DoctorsForDepartments(hospitalCode string, departments []string) map[string][]string {
	out := map[string][]string{}
	meta := c.Meta(hospitalCode)
	if meta == nil {
		return out
	}
	want := map[string]bool{}
	for _, d := range departments {
		want[NormalizeDepartment(d)] = true
	}
	for dep, names := range meta.Departments {
		if want[dep] {
			out[dep] = names
		}
	}
	return out
}

// DoctorsForDepartmentCodes maps department codes to doctor rosters.
func (c *Catalog) DoctorsForDepartmentCodes(hospitalCode string, codes []string) map[string][]string {
	out := map[string][]string{}
	meta := c.Meta(hospitalCode)
	if meta == nil {
		return out
	}
	for _, code := range codes {
		if info, ok := meta.DepartmentsByCode[code]; ok {
			out[code] = info.Doctors
		}
	}
	return out
}

// HospitalCodes scans the data directories for hospital JSON files,
// skipping the departments index aggregates.
func (c *Catalog) HospitalCodes() []string {
	seen := map[string]bool{}
	var codes []string
	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	if c.catalogDir != "" {
		matches, _ := filepath.Glob(filepath.Join(c.catalogDir, "*.grouped.json"))
		for _, m := range matches {
			add(strings.TrimSuffix(filepath.Base(m), ".grouped.json"))
		}
	}
	for _, dir := range c.dataDirs {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
		for _, m := range matches {
			base := filepath.Base(m)
			if strings.HasPrefix(strings.ToLower(base), "departments_index") {
				continue
			}
			add(strings.TrimSuffix(base, ".json"))
		}
	}
	sort.Strings(codes)
	return codes
}

// Listing is the result of ListHospitals.
type Listing struct {
	Hospitals  map[string][]string `json:"hospitals"`
	SourceDirs []string            `json:"source_dirs"`
}

// ListHospitals scans every known hospital and returns its sorted department
// names, plus the data directories that were consulted.
func (c *Catalog) ListHospitals() Listing {
	out := Listing{Hospitals: map[string][]string{}, SourceDirs: append([]string{}, c.dataDirs...)}
	for _, code := range c.HospitalCodes() {
		meta := c.Meta(code)
		if meta == nil || len(meta.Departments) == 0 {
			continue
		}
		deps := make([]string, 0, len(meta.Departments))
		for dep := range meta.Departments {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		out.Hospitals[code] = deps
	}
	return out
}

// HospitalImage returns the image filename for a hospital when
// <ImageDir>/<CODE>.png exists, otherwise "".
func (c *Catalog) HospitalImage(hospitalCode string) string {
	if hospitalCode == "" || c.imageDir == "" {
		return ""
	}
	fname := strings.ToUpper(hospitalCode) + ".png"
	if fileExists(filepath.Join(c.imageDir, fname)) {
		return fname
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func uniqueSortedNames(names []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
