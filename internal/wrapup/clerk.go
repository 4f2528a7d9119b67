package wrapup

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const clerkSystem = "Bạn là thư ký y khoa. Trích xuất phiếu thăm khám tiếng Việt từ hội thoại. " +
	"Nếu có khối [BOOKING], coi đó là nguồn chuẩn cho bác sĩ, thời gian hẹn, phòng, số thứ tự, tên & SĐT bệnh nhân. " +
	"Chỉ xuất JSON theo schema đã cấu hình."

const unknownValue = "(không rõ)"
const defaultFollowUp = "Tái khám khi có dấu hiệu bất thường."

// Clerk produces the structured visit sheet persisted as the visit payload.
type Clerk struct {
	llm    planner.LLMClient
	model  string
	logger *logging.Logger
}

func NewClerk(llm planner.LLMClient, model string, logger *logging.Logger) *Clerk {
	if llm == nil {
		panic("wrapup: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Clerk{llm: llm, model: model, logger: logger}
}

// SummarizeVisit extracts a visit sheet from the transcript. booking, when
// present, is authoritative for doctor, time and patient identity. The result
// always carries every field; missing data degrades to placeholders, never to
// an error, because finalize must not fail on a bad reasoner turn.
func (c *Clerk) SummarizeVisit(ctx context.Context, transcript string, defaults, booking map[string]any) map[string]any {
	if defaults == nil {
		defaults = map[string]any{}
	}
	if booking == nil {
		booking = map[string]any{}
	}

	defaultsJSON, _ := json.MarshalIndent(defaults, "", "  ")
	bookingJSON, _ := json.MarshalIndent(booking, "", "  ")

	prompt := "Bạn là thư ký y khoa. Hãy trích xuất phiếu thăm khám (tiếng Việt) từ hội thoại dưới đây.\n" +
		"- ƯU TIÊN dùng thông tin từ [BOOKING] (coi là nguồn chuẩn).\n" +
		"- Chỉ trả JSON đúng schema, không kèm giải thích.\n" +
		"- Nếu thiếu thông tin, dùng \"(không rõ)\" hoặc mảng rỗng.\n\n" +
		"[THÔNG TIN PHÒNG KHÁM MẶC ĐỊNH]\n" + string(defaultsJSON) + "\n\n" +
		"[BOOKING]\n" + string(bookingJSON) + "\n\n" +
		"[HỘI THOẠI]\n" + transcript

	data := map[string]any{}
	resp, err := c.llm.Complete(ctx, planner.LLMRequest{
		Model:            c.model,
		System:           []string{clerkSystem},
		Messages:         []planner.ChatMessage{{Role: planner.ChatRoleUser, Content: prompt}},
		Temperature:      0,
		MaxTokens:        4096,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		c.logger.Warn("visit summary reasoner call failed", "error", err)
		data["warnings"] = "api_error: " + err.Error()
	} else if derr := planner.DecodeLooseJSON(resp.Text, &data); derr != nil {
		c.logger.Warn("visit summary output unparseable")
		data = map[string]any{}
	}

	// booking wins when the sheet left a field blank
	setDefault(data, "doctor_name", str(booking["doctor_name"]))
	setDefault(data, "appointment_time", str(booking["slot_time"]))
	setDefault(data, "room", str(booking["room"]))
	setDefault(data, "queue_number", str(booking["queue_number"]))
	setDefault(data, "patient_name", str(booking["patient_name"]))
	setDefault(data, "phone", str(booking["phone"]))

	return map[string]any{
		"patient_name":        orStr(data["patient_name"], unknownValue),
		"phone":               orStr(data["phone"], unknownValue),
		"customer_id":         orStr(data["customer_id"], unknownValue),
		"doctor_name":         orStr(data["doctor_name"], str(defaults["doctor_name"]), unknownValue),
		"appointment_time":    orStr(data["appointment_time"], str(defaults["appointment_time"]), unknownValue),
		"room":                orStr(data["room"], ""),
		"queue_number":        orStr(data["queue_number"], ""),
		"symptoms":            orList(data["symptoms"]),
		"tentative_diagnoses": orList(data["tentative_diagnoses"]),
		"tests_recommended":   orList(data["tests_recommended"]),
		"medications_advised": orList(data["medications_advised"]),
		"diet_notes":          orStr(data["diet_notes"], str(defaults["diet_notes"]), unknownValue),
		"follow_up":           orStr(data["follow_up"], defaultFollowUp),
		"warnings":            orStr(data["warnings"], ""),
	}
}

func setDefault(m map[string]any, key, val string) {
	if val == "" {
		return
	}
	if cur := str(m[key]); cur == "" {
		m[key] = val
	}
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// orStr returns the first non-empty candidate. The final candidate acts as
// the default and is returned even when empty.
func orStr(v any, fallbacks ...string) string {
	if s := str(v); s != "" {
		return s
	}
	for i, f := range fallbacks {
		if f != "" || i == len(fallbacks)-1 {
			return f
		}
	}
	return ""
}

func orList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{}
}
