// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// QuietWindow represents a daily clock-time range during which scheduled
// maintenance is suppressed. The window may wrap past midnight
// (e.g. 22:00-06:00).
type QuietWindow struct {
	startMinute int // minutes since midnight, inclusive
	endMinute   int // minutes since midnight, exclusive
	enabled     bool
}

// ParseQuietWindow builds a QuietWindow from "HH:MM" start and end times.
// Empty start and end disable the window. A zero-length window is treated
// as disabled.
func ParseQuietWindow(start, end string) (QuietWindow, error) {
	if start == "" && end == "" {
		return QuietWindow{}, nil
	}
	if start == "" || end == "" {
		return QuietWindow{}, fmt.Errorf("quiet hours require both start and end, got start=%q end=%q", start, end)
	}

	startTime, err := time.Parse("15:04", start)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet hours start %q: %w", start, err)
	}
	endTime, err := time.Parse("15:04", end)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet hours end %q: %w", end, err)
	}

	w := QuietWindow{
		startMinute: startTime.Hour()*60 + startTime.Minute(),
		endMinute:   endTime.Hour()*60 + endTime.Minute(),
	}
	w.enabled = w.startMinute != w.endMinute
	return w, nil
}

// Enabled reports whether the window suppresses anything at all.
func (w QuietWindow) Enabled() bool {
	return w.enabled
}

// Contains reports whether t falls inside the quiet window, using t's own
// location for the clock comparison.
func (w QuietWindow) Contains(t time.Time) bool {
	if !w.enabled {
		return false
	}

	minute := t.Hour()*60 + t.Minute()

	// Overnight windows wrap past midnight
	if w.startMinute > w.endMinute {
		return minute >= w.startMinute || minute < w.endMinute
	}
	return minute >= w.startMinute && minute < w.endMinute
}

// String renders the window for status reporting.
func (w QuietWindow) String() string {
	if !w.enabled {
		return "disabled"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		w.startMinute/60, w.startMinute%60, w.endMinute/60, w.endMinute%60)
}
