package visits

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// Sidecar file policy modes.
const (
	SaveAlways = "always"
	SaveFinal  = "final"
	SaveNone   = "none"
)

// SidecarWriter writes the per-visit .json and .txt files next to the
// database row, per the configured policy.
type SidecarWriter struct {
	outDir string
	mode   string
	logger *logging.Logger
}

// NewSidecarWriter creates a writer. An unknown mode behaves like "always".
func NewSidecarWriter(outDir, mode string, logger *logging.Logger) *SidecarWriter {
	if logger == nil {
		logger = logging.Default()
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case SaveAlways, SaveFinal, SaveNone:
	default:
		mode = SaveAlways
	}
	return &SidecarWriter{outDir: outDir, mode: mode, logger: logger}
}

// Write emits the sidecar pair when the policy allows it. final marks a
// terminal visit record. Failures are logged, never fatal.
func (w *SidecarWriter) Write(visitID string, payload map[string]any, final bool) {
	if w == nil {
		return
	}
	switch w.mode {
	case SaveNone:
		return
	case SaveFinal:
		if !final {
			return
		}
	}
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		w.logger.Warn("sidecar dir create failed", "error", err, "dir", w.outDir)
		return
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		w.logger.Warn("sidecar marshal failed", "error", err, "visit_id", visitID)
		return
	}
	if err := os.WriteFile(filepath.Join(w.outDir, visitID+".json"), raw, 0o644); err != nil {
		w.logger.Warn("sidecar json write failed", "error", err, "visit_id", visitID)
	}
	if err := os.WriteFile(filepath.Join(w.outDir, visitID+".txt"), []byte(PrettyText(payload)), 0o644); err != nil {
		w.logger.Warn("sidecar txt write failed", "error", err, "visit_id", visitID)
	}
}

// PrettyText renders a visit payload as a printable visit sheet.
func PrettyText(p map[string]any) string {
	get := func(key, def string) string {
		if s := str(p[key]); s != "" {
			return s
		}
		return def
	}
	lines := []string{
		"=== PHIẾU KẾT QUẢ THĂM KHÁM ===",
		fmt.Sprintf("Mã KH: %s", get("customer_id", "(không rõ)")),
		fmt.Sprintf("Họ tên: %s", get("patient_name", "(không rõ)")),
		fmt.Sprintf("SĐT: %s", get("phone", "(không rõ)")),
		fmt.Sprintf("Bác sĩ: %s", get("doctor_name", "(không rõ)")),
		fmt.Sprintf("Lịch hẹn: %s", get("appointment_time", "(không rõ)")),
		"",
		"Triệu chứng:",
	}
	if symptoms, ok := p["symptoms"].([]any); ok {
		for _, v := range symptoms {
			sym, _ := v.(map[string]any)
			lines = append(lines, fmt.Sprintf(" - %s | mức độ: %s | thời gian: %s",
				orDefault(str(sym["name"]), "?"),
				orDefault(str(sym["severity"]), "?"),
				orDefault(str(sym["duration"]), "?")))
		}
	}
	lines = append(lines, "", "Chẩn đoán sơ bộ: "+joinOrDefault(stringList(p["tentative_diagnoses"]), "(không rõ)"))
	lines = append(lines, "Xét nghiệm khuyến nghị:")
	for _, t := range stringList(p["tests_recommended"]) {
		lines = append(lines, " - "+t)
	}
	lines = append(lines, "Thuốc/điều trị đề nghị:")
	for _, m := range stringList(p["medications_advised"]) {
		lines = append(lines, " - "+m)
	}
	lines = append(lines,
		"",
		"Chế độ ăn/kiêng: "+get("diet_notes", "(không rõ)"),
		"Dặn dò: "+get("follow_up", "Tái khám khi bất thường"),
		"",
		"Xin cảm ơn quý khách!",
	)
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func joinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
