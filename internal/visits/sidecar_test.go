package visits

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sidecarPayload() map[string]any {
	return map[string]any{
		"customer_id":      "CUS-abc",
		"patient_name":     "Nguyễn Văn A",
		"phone":            "0901234567",
		"doctor_name":      "Bs A",
		"appointment_time": "2025-01-15 08:00",
		"symptoms": []any{
			map[string]any{"name": "ho", "severity": "nhẹ", "duration": "3 ngày"},
		},
		"tentative_diagnoses": []any{"viêm họng"},
		"tests_recommended":   []any{"xét nghiệm máu"},
		"medications_advised": []any{"paracetamol"},
	}
}

func TestSidecarAlways(t *testing.T) {
	dir := t.TempDir()
	w := NewSidecarWriter(dir, SaveAlways, nil)
	w.Write("VIS-1", sidecarPayload(), false)

	if _, err := os.Stat(filepath.Join(dir, "VIS-1.json")); err != nil {
		t.Errorf("json sidecar missing: %v", err)
	}
	txt, err := os.ReadFile(filepath.Join(dir, "VIS-1.txt"))
	if err != nil {
		t.Fatalf("txt sidecar missing: %v", err)
	}
	if !strings.Contains(string(txt), "Nguyễn Văn A") || !strings.Contains(string(txt), "viêm họng") {
		t.Errorf("txt sidecar content:\n%s", txt)
	}
}

func TestSidecarFinalOnly(t *testing.T) {
	dir := t.TempDir()
	w := NewSidecarWriter(dir, SaveFinal, nil)

	w.Write("VIS-1", sidecarPayload(), false)
	if _, err := os.Stat(filepath.Join(dir, "VIS-1.json")); err == nil {
		t.Error("non-final visit should not write files in final mode")
	}

	w.Write("VIS-2", sidecarPayload(), true)
	if _, err := os.Stat(filepath.Join(dir, "VIS-2.json")); err != nil {
		t.Errorf("final visit should write files: %v", err)
	}
}

func TestSidecarNone(t *testing.T) {
	dir := t.TempDir()
	w := NewSidecarWriter(dir, SaveNone, nil)
	w.Write("VIS-1", sidecarPayload(), true)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("none mode wrote %d files", len(entries))
	}
}

func TestSidecarUnknownModeDefaultsToAlways(t *testing.T) {
	dir := t.TempDir()
	w := NewSidecarWriter(dir, "whatever", nil)
	w.Write("VIS-1", sidecarPayload(), false)
	if _, err := os.Stat(filepath.Join(dir, "VIS-1.txt")); err != nil {
		t.Errorf("expected sidecars: %v", err)
	}
}

func TestPrettyTextDefaults(t *testing.T) {
	out := PrettyText(map[string]any{})
	if !strings.Contains(out, "(không rõ)") {
		t.Error("missing placeholder for empty fields")
	}
	if !strings.Contains(out, "Tái khám khi bất thường") {
		t.Error("missing default follow-up line")
	}
}

func TestBuildPersonalContext(t *testing.T) {
	out := BuildPersonalContext(FactsSummary{Facts: "dị ứng aspirin", LastSummary: "khám ho tuần trước"}, nil)
	if !strings.Contains(out, "[PATIENT_FACTS]\ndị ứng aspirin\n[/PATIENT_FACTS]") {
		t.Errorf("facts block missing:\n%s", out)
	}
	if !strings.Contains(out, "[LAST_SUMMARY]") {
		t.Errorf("summary block missing:\n%s", out)
	}

	// summary falls back to the newest visit summary
	out = BuildPersonalContext(FactsSummary{}, []Visit{{Summary: "khám dạ dày"}})
	if !strings.Contains(out, "khám dạ dày") {
		t.Errorf("fallback summary missing:\n%s", out)
	}

	if got := BuildPersonalContext(FactsSummary{}, nil); got != "" {
		t.Errorf("empty profile should produce empty context, got %q", got)
	}
}
