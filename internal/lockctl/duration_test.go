package lockctl

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectedDuration(t *testing.T) {
	d := SelectedDuration{Hours: 1, Minutes: 5}
	assert.Equal(t, 65, d.TotalMinutes())
	assert.Equal(t, 65*time.Minute, d.Duration())
	assert.Equal(t, "1h 05m", d.String())

	assert.Equal(t, 1, DefaultSelection.TotalMinutes())
	assert.Equal(t, "0h 01m", DefaultSelection.String())
}

func TestParseSelectedDuration(t *testing.T) {
	tests := []struct {
		in   string
		want SelectedDuration
	}{
		{"1h30m", SelectedDuration{Hours: 1, Minutes: 30}},
		{"45m", SelectedDuration{Minutes: 45}},
		{"90m", SelectedDuration{Hours: 1, Minutes: 30}},
		{"2:05", SelectedDuration{Hours: 2, Minutes: 5}},
		{" 0:00 ", SelectedDuration{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSelectedDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSelectedDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "soon", "30s", "1:75", "x:10", "1m30s"} {
		_, err := ParseSelectedDuration(in)
		assert.Error(t, err, in)
	}

	_, err := ParseSelectedDuration("-5m")
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = ParseSelectedDuration("-1:00")
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestSelectedDuration_Validate(t *testing.T) {
	maxHours := int(MaxSelectedMinutes / 60)
	tests := []struct {
		name    string
		d       SelectedDuration
		wantErr bool
	}{
		{name: "zero", d: SelectedDuration{}},
		{name: "typical", d: SelectedDuration{Hours: 1, Minutes: 30}},
		{name: "longest", d: SelectedDuration{Hours: maxHours, Minutes: int(MaxSelectedMinutes % 60)}},
		{name: "one minute past longest", d: SelectedDuration{Hours: maxHours, Minutes: int(MaxSelectedMinutes%60) + 1}, wantErr: true},
		{name: "wraps to 26 seconds", d: SelectedDuration{Hours: 5124095, Minutes: 35}, wantErr: true},
		{name: "huge minutes", d: SelectedDuration{Minutes: math.MaxInt}, wantErr: true},
		{name: "huge hours", d: SelectedDuration{Hours: math.MaxInt}, wantErr: true},
		{name: "negative", d: SelectedDuration{Minutes: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, tt.d.Duration(), time.Duration(0))
		})
	}
}

func TestParseSelectedDuration_TooLong(t *testing.T) {
	_, err := ParseSelectedDuration("5124095:35")
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatRemaining(0))
	assert.Equal(t, "00:00:00", FormatRemaining(-time.Second))
	assert.Equal(t, "00:00:59", FormatRemaining(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "00:01:00", FormatRemaining(time.Minute))
	assert.Equal(t, "01:05:09", FormatRemaining(time.Hour+5*time.Minute+9*time.Second))
	assert.Equal(t, "25:00:00", FormatRemaining(25*time.Hour))
}
