package planner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
)

const stage1System = "Bạn là trợ lý chọn khoa. Dựa trên hội thoại, chọn 1-5 MÃ KHOA (department_code) phù hợp nhất. " +
	"CHỈ DÙNG MÃ (không thêm tên vào mảng kết quả). Trả JSON: {\"codes\":[\"CODE1\",...]} (1-5).\n" +
	"Không bịa code không có trong danh sách. Không thêm text ngoài JSON."

const (
	stage1Attempts = 2
	maxStage1Codes = 5
)

// Salvage regexes for truncated or chatty stage-1 output.
var (
	codeListRE  = regexp.MustCompile(`(?is)"codes"\s*:\s*\[(.*?)\]`)
	codeItemRE  = regexp.MustCompile(`"([A-Z0-9]{2,10})"`)
	looseCodeRE = regexp.MustCompile(`\b([A-Z0-9]{3,6})\b`)
)

// salvageCodes extracts department codes from malformed reasoner output.
// It prefers the quoted items inside a "codes" array, then falls back to a
// loose scan of the whole text. Only codes present in valid survive.
func salvageCodes(raw string, valid map[string]bool, limit int) []string {
	var picked []string
	if raw == "" {
		return picked
	}
	segment := raw
	if m := codeListRE.FindStringSubmatch(raw); m != nil {
		segment = m[1]
	}
	for _, m := range codeItemRE.FindAllStringSubmatch(segment, -1) {
		c := m[1]
		if valid[c] && !contains(picked, c) {
			picked = append(picked, c)
		}
		if len(picked) >= limit {
			return picked
		}
	}
	if len(picked) > 0 {
		return picked
	}
	for _, m := range looseCodeRE.FindAllStringSubmatch(raw, -1) {
		c := m[1]
		if valid[c] && !contains(picked, c) {
			picked = append(picked, c)
		}
		if len(picked) >= limit {
			break
		}
	}
	return picked
}

// selectCodes runs stage 1: pick 1-5 department codes for the conversation.
// Codes not present in the index are discarded. Returns nil when the reasoner
// yields nothing usable after two attempts.
func (p *Planner) selectCodes(ctx context.Context, historyText string, index catalog.DepartmentsIndex) []string {
	codeNames := index.CodeNames()
	if len(codeNames) == 0 {
		return nil
	}
	valid := make(map[string]bool, len(codeNames))
	codes := make([]string, 0, len(codeNames))
	for c := range codeNames {
		valid[c] = true
		codes = append(codes, c)
	}
	sort.Strings(codes)
	lines := make([]string, 0, len(codes))
	for _, c := range codes {
		lines = append(lines, fmt.Sprintf("%s - %s", c, codeNames[c]))
	}

	prompt := "Bạn chọn khoa thăm khám bước đầu cho bệnh nhân, dựa vào dấu hiệu bệnh, yêu cầu và lịch sử hội thoại. " +
		"Kết hợp danh sách mã và tên khoa dưới đây để chọn ra 1-3 khoa phù hợp. Phải trả về MÃ khoa.\n\n" +
		"# DANH SÁCH MÃ KHOA\n" + strings.Join(lines, "\n") + "\n\n" +
		"# HỘI THOẠI\n" + historyText + "\n\n" +
		"# YÊU CẦU\nTrả JSON: {\"codes\":[\"MÃ1\",...]} (1-3). Không bịa. Chỉ JSON."

	var picked []string
	for attempt := 0; attempt < stage1Attempts && len(picked) == 0; attempt++ {
		resp, err := p.llm.Complete(ctx, LLMRequest{
			Model:            p.stage1Model,
			System:           []string{stage1System},
			Messages:         []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
			Temperature:      0,
			MaxTokens:        456,
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			p.logger.Warn("stage1 reasoner call failed", "attempt", attempt+1, "error", err)
			continue
		}
		picked = parseStage1(resp.Text, valid)
	}
	return picked
}

func parseStage1(raw string, valid map[string]bool) []string {
	var picked []string
	var data map[string]any
	if err := DecodeLooseJSON(raw, &data); err == nil {
		for _, key := range []string{"codes", "selected_codes", "selected"} {
			arr, ok := data[key].([]any)
			if !ok {
				continue
			}
			for _, v := range arr {
				c, ok := v.(string)
				if ok && valid[c] && !contains(picked, c) {
					picked = append(picked, c)
				}
				if len(picked) >= maxStage1Codes {
					break
				}
			}
			if len(picked) > 0 {
				break
			}
		}
	}
	if len(picked) == 0 {
		picked = salvageCodes(raw, valid, maxStage1Codes)
	}
	return picked
}

// fallbackCodes returns the first up-to-n codes encountered in the index,
// scanning hospitals in sorted order for determinism.
func fallbackCodes(index catalog.DepartmentsIndex, n int) []string {
	hospitals := make([]string, 0, len(index))
	for h := range index {
		hospitals = append(hospitals, h)
	}
	sort.Strings(hospitals)
	var out []string
	for _, h := range hospitals {
		for _, e := range index[h] {
			if e.Code != "" && !contains(out, e.Code) {
				out = append(out, e.Code)
			}
			if len(out) >= n {
				return out
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
