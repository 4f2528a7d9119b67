package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
)

const stage2System = "Bạn là trợ lý gợi ý lịch khám dựa 100% vào dữ liệu cung cấp (hospitals->departments->doctors->free_slots). " +
	"KHÔNG được tạo thêm bệnh viện, khoa, bác sĩ, hoặc giờ ngoài danh sách free_slots. " +
	"Nếu danh sách hospitals trống hoặc tất cả doctors không có free_slots thì trả options=[] và chosen phải null hoặc thiếu."

// SlotSpec describes the working-day grid inside a schedule document.
type SlotSpec struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	SlotMinutes int    `json:"slot_minutes"`
}

// DoctorSchedule is one doctor's remaining free slots.
type DoctorSchedule struct {
	Name      string   `json:"name"`
	FreeSlots []string `json:"free_slots"`
}

type DepartmentSchedule struct {
	DepartmentCode string           `json:"department_code"`
	DepartmentName string           `json:"department_name"`
	Doctors        []DoctorSchedule `json:"doctors"`
}

type HospitalSchedule struct {
	HospitalCode  string               `json:"hospital_code"`
	HospitalName  string               `json:"hospital_name"`
	Departments   []DepartmentSchedule `json:"departments"`
	HospitalImage string               `json:"hospital_image,omitempty"`
}

// ScheduleDoc is the availability snapshot handed to the stage-2 reasoner.
// The sanitizer validates the reasoner's options against this same document.
type ScheduleDoc struct {
	Date                    string             `json:"date"`
	Slots                   SlotSpec           `json:"slots"`
	Hospitals               []HospitalSchedule `json:"hospitals"`
	SelectedDepartmentCodes []string           `json:"selected_department_codes"`
}

// GatherSchedule aggregates free slots for the selected department codes
// across every hospital known to the catalog.
func (p *Planner) GatherSchedule(ctx context.Context, selectedCodes []string, index catalog.DepartmentsIndex, date string) (*ScheduleDoc, error) {
	codeDisplay := map[string]string{}
	for _, entries := range index {
		for _, e := range entries {
			if e.Code == "" || e.Name == "" || !contains(selectedCodes, e.Code) {
				continue
			}
			if _, seen := codeDisplay[e.Code]; !seen {
				codeDisplay[e.Code] = catalog.CleanDisplayName(e.Name)
			}
		}
	}

	grid := p.scheduler.Grid()
	doc := &ScheduleDoc{
		Date: date,
		Slots: SlotSpec{
			Start:       grid.Start,
			End:         grid.End,
			SlotMinutes: grid.SlotMinutes,
		},
		SelectedDepartmentCodes: selectedCodes,
	}

	for _, hospCode := range p.catalog.HospitalCodes() {
		meta := p.catalog.Meta(hospCode)
		if meta == nil || len(meta.DepartmentsByCode) == 0 {
			continue
		}
		free, err := p.scheduler.FreeSlotsByCodes(ctx, hospCode, selectedCodes, date)
		if err != nil {
			return nil, fmt.Errorf("planner: free slots for %s: %w", hospCode, err)
		}
		var deps []DepartmentSchedule
		for _, code := range selectedCodes {
			info, ok := meta.DepartmentsByCode[code]
			if !ok {
				continue
			}
			dispName := catalog.CleanDisplayName(info.Name)
			if dispName == "" {
				dispName = codeDisplay[code]
			}
			if dispName == "" {
				dispName = code
			}
			docs := make([]DoctorSchedule, 0, len(info.Doctors))
			for _, name := range info.Doctors {
				docs = append(docs, DoctorSchedule{Name: name, FreeSlots: free[code][name]})
			}
			deps = append(deps, DepartmentSchedule{
				DepartmentCode: code,
				DepartmentName: dispName,
				Doctors:        docs,
			})
		}
		if len(deps) == 0 {
			continue
		}
		hospName := meta.HospitalName
		if hospName == "" {
			hospName = hospCode
		}
		doc.Hospitals = append(doc.Hospitals, HospitalSchedule{
			HospitalCode:  hospCode,
			HospitalName:  hospName,
			Departments:   deps,
			HospitalImage: p.catalog.HospitalImage(hospCode),
		})
	}
	return doc, nil
}

// buildOptions runs stage 2: hand the schedule document and transcript to the
// reasoner and parse its option set. The caller sanitizes the result.
func (p *Planner) buildOptions(ctx context.Context, historyText string, doc *ScheduleDoc) (*Result, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("planner: schedule marshal failed: %w", err)
	}
	prompt := "# DATA\n" + string(data) + "\n\n" +
		"# HỘI THOẠI\n" + historyText + "\n\n" +
		"# YÊU CẦU\nTạo tối đa 3 options hợp lệ. Mỗi option: hospital_code, department_code, doctor_name, slot_time=DATE HH:MM (dùng free_slots). " +
		"Chọn 1 vào 'chosen'. Không bịa. Nếu không còn slot: options=[] và chosen=null."

	resp, err := p.llm.Complete(ctx, LLMRequest{
		Model:            p.stage2Model,
		System:           []string{stage2System},
		Messages:         []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		Temperature:      0,
		MaxTokens:        10096,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("planner: api_error: %w", err)
	}

	var res Result
	if err := DecodeLooseJSON(resp.Text, &res); err != nil {
		preview := resp.Text
		if len(preview) > 200 {
			preview = preview[:200]
		}
		p.logger.Warn("stage2 output unparseable", "preview", strings.ReplaceAll(preview, "\n", " "))
		return nil, err
	}
	return &res, nil
}
