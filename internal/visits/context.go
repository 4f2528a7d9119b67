package visits

import (
	"fmt"
	"strings"
)

// BuildPersonalContext renders a returning patient's profile as tagged
// blocks for injection into the reasoner's instructions. Only sections with
// data are emitted. When the customer has no stored summary, the newest
// visit summary stands in.
func BuildPersonalContext(fs FactsSummary, recent []Visit) string {
	var sections []string

	if facts := strings.TrimSpace(fs.Facts); facts != "" {
		sections = append(sections, fmt.Sprintf("[PATIENT_FACTS]\n%s\n[/PATIENT_FACTS]", facts))
	}

	lastSummary := strings.TrimSpace(fs.LastSummary)
	if lastSummary == "" {
		for _, v := range recent {
			if s := strings.TrimSpace(v.Summary); s != "" {
				lastSummary = s
				break
			}
		}
	}
	if lastSummary != "" {
		sections = append(sections, fmt.Sprintf("[LAST_SUMMARY]\n%s\n[/LAST_SUMMARY]", lastSummary))
	}

	return strings.Join(sections, "\n\n")
}
