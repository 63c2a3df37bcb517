package lockctl

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SelectedDuration is the user's countdown choice. It is read once when a
// schedule starts.
type SelectedDuration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// DefaultSelection is one minute
var DefaultSelection = SelectedDuration{Hours: 0, Minutes: 1}

// MaxSelectedMinutes is the longest selection a time.Duration can hold
const MaxSelectedMinutes = math.MaxInt64 / int64(time.Minute)

// TotalMinutes returns hours*60 + minutes. Only meaningful for a selection
// that passes Validate.
func (d SelectedDuration) TotalMinutes() int {
	return d.Hours*60 + d.Minutes
}

// Duration converts the selection to a time.Duration. Only meaningful for a
// selection that passes Validate.
func (d SelectedDuration) Duration() time.Duration {
	return time.Duration(int64(d.Hours)*60+int64(d.Minutes)) * time.Minute
}

// Validate rejects negative selections and selections too long to count down
func (d SelectedDuration) Validate() error {
	if d.Hours < 0 || d.Minutes < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidDuration)
	}
	hours := int64(d.Hours)
	if hours > MaxSelectedMinutes/60 || int64(d.Minutes) > MaxSelectedMinutes-hours*60 {
		return fmt.Errorf("%w: duration exceeds %d minutes", ErrInvalidDuration, MaxSelectedMinutes)
	}
	return nil
}

// String formats the selection as "1h 05m"
func (d SelectedDuration) String() string {
	return fmt.Sprintf("%dh %02dm", d.Hours, d.Minutes)
}

// ParseSelectedDuration accepts Go durations ("1h30m", "45m") and clock
// notation ("1:30"). Seconds are not selectable and are rejected.
func ParseSelectedDuration(s string) (SelectedDuration, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(h)
		if err != nil {
			return SelectedDuration{}, fmt.Errorf("invalid hours %q", h)
		}
		minutes, err := strconv.Atoi(m)
		if err != nil || minutes >= 60 {
			return SelectedDuration{}, fmt.Errorf("invalid minutes %q", m)
		}
		return normalizeSelection(hours, minutes)
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return SelectedDuration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d%time.Minute != 0 {
		return SelectedDuration{}, fmt.Errorf("duration %q must be a whole number of minutes", s)
	}
	total := int(d / time.Minute)
	return normalizeSelection(total/60, total%60)
}

func normalizeSelection(hours, minutes int) (SelectedDuration, error) {
	selection := SelectedDuration{Hours: hours, Minutes: minutes}
	if err := selection.Validate(); err != nil {
		return SelectedDuration{}, err
	}
	return selection, nil
}

// FormatRemaining renders a remaining time as HH:MM:SS
func FormatRemaining(d time.Duration) string {
	totalSeconds := int64(d / time.Second)
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// DurationPicker asks the user for a duration. ok is false when the picker was
// dismissed without a selection.
type DurationPicker interface {
	Pick(ctx context.Context, initial SelectedDuration) (selected SelectedDuration, ok bool, err error)
}
