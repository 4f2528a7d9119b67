package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Default working-day grid: 28 slot starts, 07:40 through 16:40.
const (
	DefaultWorkStart   = "07:40"
	DefaultWorkEnd     = "16:40"
	DefaultSlotMinutes = 20
)

// Grid describes the fixed slot layout of a working day. End is the START of
// the last slot, not its finish.
type Grid struct {
	Start       string
	End         string
	SlotMinutes int
}

// DefaultGrid returns the standard 20-minute grid.
func DefaultGrid() Grid {
	return Grid{Start: DefaultWorkStart, End: DefaultWorkEnd, SlotMinutes: DefaultSlotMinutes}
}

// NewGrid builds a grid from configuration, falling back to defaults for
// unparseable or missing values.
func NewGrid(start, end string, slotMinutes int) Grid {
	if _, err := MinuteOfDay(start); err != nil {
		start = DefaultWorkStart
	}
	if _, err := MinuteOfDay(end); err != nil {
		end = DefaultWorkEnd
	}
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	return Grid{Start: start, End: end, SlotMinutes: slotMinutes}
}

// Slots generates every slot start from Start to End inclusive.
func (g Grid) Slots() []string {
	start, err := MinuteOfDay(g.Start)
	if err != nil {
		return nil
	}
	end, err := MinuteOfDay(g.End)
	if err != nil {
		return nil
	}
	var out []string
	for m := start; m <= end; m += g.SlotMinutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

// Allowed returns the slot set for membership checks.
func (g Grid) Allowed() map[string]bool {
	out := map[string]bool{}
	for _, s := range g.Slots() {
		out[s] = true
	}
	return out
}

// MinuteOfDay parses "HH:MM" into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("schedule: bad time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("schedule: bad time %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("schedule: bad time %q", hhmm)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("schedule: bad time %q", hhmm)
	}
	return h*60 + m, nil
}
