package wrapup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const extractionSystem = "Bạn là chuyên gia phân tích hồ sơ y tế. Trích xuất và tổng hợp thông tin từ cuộc hội thoại khám bệnh. Chỉ xuất JSON hai trường facts và summary."

const extractionPrompt = `HƯỚNG DẪN:
1. FACTS: Trích xuất các thông tin FACTS có thể tái sử dụng cho các lần khám sau:
   - Thông tin cá nhân cơ bản (tuổi, nghề nghiệp, điều kiện sống)
   - Tiền sử bệnh, dị ứng thuốc/thực phẩm
   - Thói quen sinh hoạt quan trọng, thuốc đang dùng thường xuyên
   - Bệnh di truyền gia đình, triệu chứng mạn tính/tái phát

2. SUMMARY: Tạo tóm tắt ngắn gọn về cuộc hội thoại này:
   - Lý do khám chính, triệu chứng hiện tại và thời gian xuất hiện
   - Kế hoạch điều trị/xét nghiệm, lưu ý đặc biệt

QUY TẮC:
- Chỉ ghi thông tin được đề cập rõ ràng, không suy đoán
- Facts phải là thông tin ổn định theo thời gian
- Nếu có facts cũ, hãy tích hợp và cập nhật (không trùng lặp)

INPUT:
Cuộc hội thoại mới: %s

Facts cũ (nếu có): %s

Summary cũ (nếu có): %s

Trả về JSON: {"facts": "...", "summary": "..."}`

// Extractor merges a finished conversation with a customer's prior facts and
// summary into an updated long-term profile.
type Extractor struct {
	llm    planner.LLMClient
	model  string
	logger *logging.Logger
}

func NewExtractor(llm planner.LLMClient, model string, logger *logging.Logger) *Extractor {
	if llm == nil {
		panic("wrapup: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{llm: llm, model: model, logger: logger}
}

type factsAndSummary struct {
	Facts   string `json:"facts"`
	Summary string `json:"summary"`
}

// Extract returns updated (facts, summary). On any failure the caller's
// existing values come back unchanged, so a bad reasoner turn never erases a
// patient profile.
func (e *Extractor) Extract(ctx context.Context, newConversation, existingFacts, existingSummary string) (string, string) {
	if strings.TrimSpace(newConversation) == "" {
		return existingFacts, existingSummary
	}

	factsIn := strings.TrimSpace(existingFacts)
	if factsIn == "" {
		factsIn = "(Chưa có)"
	}
	summaryIn := strings.TrimSpace(existingSummary)
	if summaryIn == "" {
		summaryIn = "(Chưa có)"
	}
	prompt := fmt.Sprintf(extractionPrompt, strings.TrimSpace(newConversation), factsIn, summaryIn)

	resp, err := e.llm.Complete(ctx, planner.LLMRequest{
		Model:            e.model,
		System:           []string{extractionSystem},
		Messages:         []planner.ChatMessage{{Role: planner.ChatRoleUser, Content: prompt}},
		Temperature:      0.1,
		MaxTokens:        4096,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		e.logger.Warn("facts extraction failed", "error", err)
		return existingFacts, existingSummary
	}

	var out factsAndSummary
	if err := planner.DecodeLooseJSON(resp.Text, &out); err == nil {
		facts := out.Facts
		if facts == "" {
			facts = existingFacts
		}
		return facts, out.Summary
	}

	// tolerant recovery for prose-wrapped or headed output
	facts := extractSection(resp.Text, "facts")
	summary := extractSection(resp.Text, "summary")
	if facts == "" && summary == "" {
		return existingFacts, existingSummary
	}
	if facts == "" {
		facts = existingFacts
	}
	return facts, summary
}

// extractSection pulls one named section out of non-JSON reasoner output.
// It first retries the outermost {...} block, then scans for a header line
// like "facts: ..." collecting lines until the next header.
func extractSection(text, section string) string {
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			var data map[string]any
			if err := json.Unmarshal([]byte(text[start:end+1]), &data); err == nil {
				if s, ok := data[section].(string); ok {
					return s
				}
			}
		}
	}

	var content []string
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, section) && (strings.Contains(trimmed, ":") || strings.HasPrefix(lower, section)) {
			inSection = true
			if i := strings.Index(trimmed, ":"); i >= 0 {
				if after := strings.TrimSpace(trimmed[i+1:]); after != "" {
					content = append(content, after)
				}
			}
			continue
		}
		if inSection && (strings.HasPrefix(lower, "summary") || strings.HasPrefix(lower, "facts")) {
			break
		}
		if inSection && trimmed != "" {
			content = append(content, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(content, "\n"))
}

// MergeFacts concatenates old and new facts with a dated separator. Used when
// the reasoner returns only fresh facts instead of an integrated profile.
func MergeFacts(oldFacts, newFacts string) string {
	oldFacts = strings.TrimSpace(oldFacts)
	newFacts = strings.TrimSpace(newFacts)
	if oldFacts == "" {
		return newFacts
	}
	if newFacts == "" {
		return oldFacts
	}
	return oldFacts + "\n\n--- Cập nhật mới ---\n" + newFacts
}
