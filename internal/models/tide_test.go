package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTideKindFromCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TideKindHigh, TideKindFromCode("H"))
	assert.Equal(t, TideKindLow, TideKindFromCode("L"))
	assert.Equal(t, TideKindLow, TideKindFromCode(""))
}

func TestHeightInchesFromFeet(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 18.0, HeightInchesFromFeet(1.5), 1e-9)
	assert.InDelta(t, -3.6, HeightInchesFromFeet(-0.3), 1e-9)
	assert.InDelta(t, 0.0, HeightInchesFromFeet(0), 1e-9)
}

func TestHeightDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		inches float64
		want   string
	}{
		{name: "positive with fraction", inches: 66.0, want: "5 ft 6.0 in"},
		{name: "negative below one foot keeps leading sign", inches: -3.6, want: "-0 ft 3.6 in"},
		{name: "exactly zero has no sign", inches: 0.0, want: "0 ft 0.0 in"},
		{name: "just above zero", inches: 0.1, want: "0 ft 0.1 in"},
		{name: "just below zero", inches: -0.1, want: "-0 ft 0.1 in"},
		{name: "negative with feet", inches: -14.4, want: "-1 ft 2.4 in"},
		{name: "fraction rounds up to full foot", inches: 11.96, want: "1 ft 0.0 in"},
		{name: "rounds to one decimal", inches: 7.25, want: "0 ft 7.2 in"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := TideEvent{HeightInches: tt.inches}
			assert.Equal(t, tt.want, event.Height())
		})
	}
}

func TestTideEventString(t *testing.T) {
	t.Parallel()

	event := TideEvent{
		EventTime:    time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC),
		Kind:         TideKindHigh,
		HeightInches: 66.0,
	}

	assert.Equal(t, "High tide at 3:04 PM (5 ft 6.0 in)", event.String())
}

func TestClockStripsLeadingZero(t *testing.T) {
	t.Parallel()

	event := TideEvent{EventTime: time.Date(2026, 8, 28, 9, 5, 0, 0, time.UTC)}
	assert.Equal(t, "9:05 AM", event.Clock())
}
