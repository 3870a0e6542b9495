package models

import (
	"fmt"
	"math"
	"time"
)

type TideKind string

const (
	TideKindHigh TideKind = "High"
	TideKindLow  TideKind = "Low"
)

// TideKindFromCode maps the provider's one-letter code to a kind.
// Anything other than "H" is treated as a low tide, matching the
// provider's two-valued hilo output.
func TideKindFromCode(code string) TideKind {
	if code == "H" {
		return TideKindHigh
	}
	return TideKindLow
}

const inchesPerFoot = 12

// TideEvent is one predicted high or low tide at a station. EventTime is
// local to the station and carries no zone offset. HeightInches is the
// water-level change relative to the datum as a single signed value;
// feet and inches are decomposed only for display.
type TideEvent struct {
	EventTime    time.Time
	Kind         TideKind
	HeightInches float64
}

// HeightInchesFromFeet converts the provider's signed decimal-feet value
// into total inches.
func HeightInchesFromFeet(feet float64) float64 {
	return feet * inchesPerFoot
}

// Clock renders the event time as "3:04 PM".
func (e TideEvent) Clock() string {
	return e.EventTime.Format("3:04 PM")
}

// Height renders the signed total-inches value as e.g. "-0 ft 3.6 in".
// The sign leads the whole measurement, so a change of -0.3 feet keeps
// its minus sign even though the feet component is zero.
func (e TideEvent) Height() string {
	sign := ""
	if e.HeightInches < 0 {
		sign = "-"
	}

	absolute := math.Abs(e.HeightInches)
	feet := int(absolute) / inchesPerFoot
	inches := math.Round((absolute-float64(feet*inchesPerFoot))*10) / 10

	// Rounding can push the fraction to a full foot.
	if inches >= inchesPerFoot {
		feet++
		inches = 0
	}

	return fmt.Sprintf("%s%d ft %.1f in", sign, feet, inches)
}

func (e TideEvent) String() string {
	return fmt.Sprintf("%s tide at %s (%s)", e.Kind, e.Clock(), e.Height())
}

// NoaaPrediction represents the raw NOAA API prediction response
type NoaaPrediction struct {
	Time   string `json:"t"`    // Time of prediction
	Height string `json:"v"`    // Predicted water level change in feet
	Type   string `json:"type"` // H for high, L for low
}

type NoaaPredictionsResponse struct {
	Predictions []NoaaPrediction `json:"predictions"`
}
