package planner

import (
	"reflect"
	"testing"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
)

func validSet(codes ...string) map[string]bool {
	out := map[string]bool{}
	for _, c := range codes {
		out[c] = true
	}
	return out
}

func TestParseStage1(t *testing.T) {
	valid := validSet("TMH", "NK", "KBENH")
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"clean", `{"codes":["TMH","NK"]}`, []string{"TMH", "NK"}},
		{"alternate key", `{"selected_codes":["KBENH"]}`, []string{"KBENH"}},
		{"unknown codes dropped", `{"codes":["TMH","XXX"]}`, []string{"TMH"}},
		{"truncated array salvaged", `{"codes":["TMH","NK"`, []string{"TMH", "NK"}},
		{"prose with loose code", "Tôi nghĩ nên chọn TMH nhé", []string{"TMH"}},
		{"nothing usable", "xin chào", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseStage1(tt.raw, valid); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseStage1(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSalvageCodesDedupAndLimit(t *testing.T) {
	valid := validSet("A1", "B2", "C3", "D4", "E5", "F6")
	raw := `"codes": ["A1","A1","B2","C3","D4","E5","F6"]`
	got := salvageCodes(raw, valid, 5)
	if len(got) != 5 {
		t.Fatalf("got %v, want 5 codes", got)
	}
	if got[0] != "A1" || got[1] != "B2" {
		t.Errorf("order/dedup broken: %v", got)
	}
}

func TestFallbackCodes(t *testing.T) {
	index := catalog.DepartmentsIndex{
		"BV_B": {{Code: "NK", Name: "Nội Khoa"}, {Code: "TMH", Name: "Tai Mũi Họng"}},
		"BV_A": {{Code: "KBENH", Name: "Khám Bệnh"}, {Code: "NK", Name: "Nội Khoa"}, {Code: "DALIEU", Name: "Da Liễu"}},
	}
	got := fallbackCodes(index, 3)
	// hospitals are scanned in sorted order, duplicates skipped
	want := []string{"KBENH", "NK", "DALIEU"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fallbackCodes = %v, want %v", got, want)
	}

	if got := fallbackCodes(catalog.DepartmentsIndex{}, 3); len(got) != 0 {
		t.Errorf("empty index should yield nothing, got %v", got)
	}
}
