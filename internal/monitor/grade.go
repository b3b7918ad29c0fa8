package monitor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// PerformanceGrade is a latency bucket.
type PerformanceGrade string

const (
	GradeExcellent    PerformanceGrade = "excellent"
	GradeGood         PerformanceGrade = "good"
	GradeAcceptable   PerformanceGrade = "acceptable"
	GradePoor         PerformanceGrade = "poor"
	GradeUnacceptable PerformanceGrade = "unacceptable"
)

// Bound is the largest mean latency, in seconds, that still earns Grade.
type Bound struct {
	Grade PerformanceGrade `json:"grade"`
	Max   float64          `json:"max_seconds"`
}

// Thresholds is an ascending grading table. Means above the last bound grade
// as Overflow.
type Thresholds struct {
	Bounds   []Bound          `json:"bounds"`
	Overflow PerformanceGrade `json:"overflow"`
}

// DefaultThresholds grades anything slower than 2s as unacceptable.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Bounds: []Bound{
			{GradeExcellent, 0.1},
			{GradeGood, 0.5},
			{GradeAcceptable, 1.0},
			{GradePoor, 2.0},
		},
		Overflow: GradeUnacceptable,
	}
}

// LenientThresholds stretches the poor band to 5s.
func LenientThresholds() Thresholds {
	return Thresholds{
		Bounds: []Bound{
			{GradeExcellent, 0.1},
			{GradeGood, 0.5},
			{GradeAcceptable, 1.0},
			{GradePoor, 5.0},
		},
		Overflow: GradeUnacceptable,
	}
}

// Validate checks that bounds are non-empty, named, finite, positive and
// strictly ascending.
func (t Thresholds) Validate() error {
	if len(t.Bounds) == 0 {
		return amerr.New(amerr.CodeMonitorThresholdsInvalid, "thresholds need at least one bound")
	}
	if t.Overflow == "" {
		return amerr.New(amerr.CodeMonitorThresholdsInvalid, "thresholds need an overflow grade")
	}
	prev := 0.0
	for i, b := range t.Bounds {
		if b.Grade == "" {
			return amerr.Errorf(amerr.CodeMonitorThresholdsInvalid, "bound %d has no grade", i)
		}
		if math.IsNaN(b.Max) || math.IsInf(b.Max, 0) {
			return amerr.Errorf(amerr.CodeMonitorThresholdsInvalid, "bound %q (%g) is not finite", b.Grade, b.Max)
		}
		if b.Max <= prev {
			return amerr.Errorf(amerr.CodeMonitorThresholdsInvalid,
				"bound %q (%g) must be greater than %g", b.Grade, b.Max, prev)
		}
		prev = b.Max
	}
	return nil
}

// GradeOf grades a mean latency in seconds. Boundaries are inclusive.
func (t Thresholds) GradeOf(mean float64) PerformanceGrade {
	for _, b := range t.Bounds {
		if mean <= b.Max {
			return b.Grade
		}
	}
	return t.Overflow
}

// String renders t in the form ParseThresholds accepts.
func (t Thresholds) String() string {
	parts := make([]string, len(t.Bounds))
	for i, b := range t.Bounds {
		parts[i] = fmt.Sprintf("%s=%s", b.Grade, strconv.FormatFloat(b.Max, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// ParseThresholds parses "excellent=0.1,good=0.5,..." into a validated table.
func ParseThresholds(s string, overflow string) (Thresholds, error) {
	t := Thresholds{Overflow: PerformanceGrade(strings.TrimSpace(overflow))}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return Thresholds{}, amerr.Errorf(amerr.CodeMonitorThresholdsInvalid, "bound %q is not grade=seconds", part)
		}
		limit, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Thresholds{}, amerr.Wrapf(err, amerr.CodeMonitorThresholdsInvalid, "bound %q", part)
		}
		t.Bounds = append(t.Bounds, Bound{Grade: PerformanceGrade(strings.TrimSpace(name)), Max: limit})
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// Grade returns the grade and mean of durations (in seconds). An empty input
// has mean 0.
func Grade(t Thresholds, durations []float64) (PerformanceGrade, float64) {
	if len(durations) == 0 {
		return t.GradeOf(0), 0
	}
	var sum float64
	for _, d := range durations {
		sum += d
	}
	mean := sum / float64(len(durations))
	return t.GradeOf(mean), mean
}
