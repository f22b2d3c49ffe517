package tui

import (
	"strconv"
	"strings"
)

// Tracker follows run progress from the manager's progress lines.
type Tracker struct {
	Total      int
	Succeeded  int
	Failed     int
	ReportPath string
}

// Observe updates the counters from one progress line.
func (t *Tracker) Observe(line string) {
	line = strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(line, "Total tasks:"):
		if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Total tasks:"))); err == nil {
			t.Total = n
		}
	case strings.HasPrefix(line, "Report:"):
		t.ReportPath = strings.TrimSpace(strings.TrimPrefix(line, "Report:"))
	case strings.HasPrefix(line, "[") && strings.Contains(line, "] OK ->"):
		t.Succeeded++
	case strings.HasPrefix(line, "[") && strings.Contains(line, "] FAILED ->"):
		t.Failed++
	}
}

// Done is the number of finished tasks.
func (t Tracker) Done() int {
	return t.Succeeded + t.Failed
}

// Percent is the finished fraction in [0, 1].
func (t Tracker) Percent() float64 {
	if t.Total <= 0 {
		return 0
	}
	return min(float64(t.Done())/float64(t.Total), 1)
}
