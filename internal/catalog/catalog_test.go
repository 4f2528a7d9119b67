package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestMetaCodeKeyedShape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_A.json", `{
		"hospital_name": "Bệnh viện A",
		"departments": {
			"TMH": {"name": "Tai Mũi Họng", "doctors": [{"name": "BS. Anh"}, {"name": "BS. Bình"}, "BS. Chi"]},
			"NK":  {"name": "Nội Khoa", "doctors": [{"name": "BS. Dung"}]}
		}
	}`)

	c := New(Config{DataDirs: []string{dir}})
	meta := c.Meta("BV_A")
	if meta == nil {
		t.Fatal("expected meta, got nil")
	}
	if meta.HospitalName != "Bệnh viện A" {
		t.Errorf("hospital name = %q", meta.HospitalName)
	}
	tmh, ok := meta.DepartmentsByCode["TMH"]
	if !ok {
		t.Fatal("missing TMH in departments_by_code")
	}
	if tmh.Name != "Tai Mũi Họng" {
		t.Errorf("TMH name = %q", tmh.Name)
	}
	if len(tmh.Doctors) != 3 {
		t.Errorf("TMH doctors = %v", tmh.Doctors)
	}
	// code-keyed entries also populate the legacy name map
	if _, ok := meta.Departments[NormalizeDepartment("Tai Mũi Họng")]; !ok {
		t.Errorf("legacy name map missing normalized display name, have %v", meta.Departments)
	}
}

func TestMetaLegacyListShape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_B.json", `[
		{"name": "BS. An", "department": "tim   mạch"},
		{"name": "BS. Ba", "department": "Tim Mạch"},
		{"name": "BS. An", "department": "Tim Mạch"}
	]`)

	c := New(Config{DataDirs: []string{dir}})
	meta := c.Meta("BV_B")
	if meta == nil {
		t.Fatal("expected meta, got nil")
	}
	docs := meta.Departments[NormalizeDepartment("tim mạch")]
	if len(docs) != 2 {
		t.Fatalf("expected 2 unique doctors, got %v", docs)
	}
}

func TestMetaGroupedCatalogWins(t *testing.T) {
	catalogDir := t.TempDir()
	dataDir := t.TempDir()
	writeFile(t, catalogDir, "BV_C.grouped.json", `{
		"departments": {"Khoa Mắt": [{"name": "BS. Grouped"}]}
	}`)
	writeFile(t, dataDir, "BV_C.json", `[{"name": "BS. Raw", "department": "Khoa Mắt"}]`)

	c := New(Config{CatalogDir: catalogDir, DataDirs: []string{dataDir}})
	meta := c.Meta("BV_C")
	docs := meta.Departments[NormalizeDepartment("Khoa Mắt")]
	if len(docs) != 1 || docs[0] != "BS. Grouped" {
		t.Fatalf("grouped catalog should take precedence, got %v", docs)
	}
}

func TestMetaGenericDeepWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_D.json", `{
		"staff": {
			"clinics": [
				{"name": "Khoa Sản", "doctors": [
					{"name": "BS. Em", "phone": "0901234567"}
				]},
				{"name": "BS. Floating", "specialty": "Da Liễu"}
			]
		}
	}`)

	c := New(Config{DataDirs: []string{dir}})
	meta := c.Meta("BV_D")
	if meta == nil || len(meta.Departments) == 0 {
		t.Fatal("generic extraction produced nothing")
	}
	if _, ok := meta.Departments[NormalizeDepartment("Da Liễu")]; !ok {
		t.Errorf("specialty-tagged doctor not extracted: %v", meta.Departments)
	}
	if docs := meta.Departments[NormalizeDepartment("Khoa Sản")]; len(docs) != 1 {
		t.Errorf("context-inherited doctor not extracted: %v", meta.Departments)
	}
}

func TestMetaMissingFile(t *testing.T) {
	c := New(Config{DataDirs: []string{t.TempDir()}})
	if meta := c.Meta("NOPE"); meta != nil {
		t.Fatalf("expected nil meta, got %+v", meta)
	}
}

func TestMetaCacheInvalidatesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "BV_E.json", `{"departments": {"X1": {"name": "Khoa Một", "doctors": [{"name": "BS. Một"}]}}}`)

	c := New(Config{DataDirs: []string{dir}})
	first := c.Meta("BV_E")
	if len(first.DepartmentsByCode["X1"].Doctors) != 1 {
		t.Fatalf("unexpected initial roster: %v", first.DepartmentsByCode)
	}

	if err := os.WriteFile(path, []byte(`{"departments": {"X1": {"name": "Khoa Một", "doctors": [{"name": "BS. Một"}, {"name": "BS. Hai"}]}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	// force a visible mtime difference even on coarse-grained filesystems
	if err := os.Chtimes(path, time.Now(), time.Now().Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	second := c.Meta("BV_E")
	if len(second.DepartmentsByCode["X1"].Doctors) != 2 {
		t.Fatalf("cache not invalidated after file change: %v", second.DepartmentsByCode)
	}
}

func TestMetaCacheServesWithinTTL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_F.json", `{"departments": {"Y1": {"name": "Khoa Y", "doctors": [{"name": "BS. Y"}]}}}`)

	c := New(Config{DataDirs: []string{dir}})
	base := time.Now()
	c.now = func() time.Time { return base }
	first := c.Meta("BV_F")

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	second := c.Meta("BV_F")
	if first != second {
		t.Fatal("expected cached pointer within TTL with unchanged files")
	}
}

func TestListHospitals(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_A.json", `[{"name": "BS. A", "department": "Khoa Nhi"}]`)
	writeFile(t, dir, "BV_B.json", `[{"name": "BS. B", "department": "Khoa Nội"}]`)
	writeFile(t, dir, "departments_index.json", `{"BV_A": ["Khoa Nhi"]}`)

	c := New(Config{DataDirs: []string{dir}})
	listing := c.ListHospitals()
	if len(listing.Hospitals) != 2 {
		t.Fatalf("hospitals = %v", listing.Hospitals)
	}
	if len(listing.SourceDirs) != 1 || listing.SourceDirs[0] != dir {
		t.Errorf("source_dirs = %v", listing.SourceDirs)
	}
}

func TestDoctorsForDepartmentCodes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BV_G.json", `{"departments": {
		"TM": {"name": "Tim Mạch", "doctors": [{"name": "BS. Tâm"}]},
		"NH": {"name": "Nhi", "doctors": [{"name": "BS. Nhi"}]}
	}}`)

	c := New(Config{DataDirs: []string{dir}})
	got := c.DoctorsForDepartmentCodes("BV_G", []string{"TM", "MISSING"})
	if len(got) != 1 || len(got["TM"]) != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestHospitalImage(t *testing.T) {
	imgDir := t.TempDir()
	writeFile(t, imgDir, "BV_TAMANH.png", "png")

	c := New(Config{DataDirs: []string{t.TempDir()}, ImageDir: imgDir})
	if got := c.HospitalImage("bv_tamanh"); got != "BV_TAMANH.png" {
		t.Errorf("image = %q", got)
	}
	if got := c.HospitalImage("BV_OTHER"); got != "" {
		t.Errorf("expected empty image, got %q", got)
	}
}
