package face

import (
	"math"

	"attendance/internal/attendance"
)

// DefaultThreshold is the largest distance, exclusive, at which a face
// encoding is still considered the same person.
const DefaultThreshold = 0.6

// Candidate is the accepted nearest enrolled employee.
type Candidate struct {
	Employee attendance.Employee
	Distance float64
}

// Matcher performs nearest-neighbour identification over the roster.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a matcher using threshold, or DefaultThreshold when the
// value is not positive.
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match returns the roster entry closest to encoding. A candidate is accepted
// only when its distance is below the threshold and strictly lower than every
// other enrolled employee's distance. Employees without a template, or with a
// template of a different dimension, are not considered.
func (m Matcher) Match(encoding []float64, roster []attendance.Employee) (Candidate, bool) {
	if len(encoding) == 0 {
		return Candidate{}, false
	}
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	best := -1
	bestDistance := math.Inf(1)
	tied := false
	for i, employee := range roster {
		if !employee.HasTemplate() {
			continue
		}
		distance, ok := Distance(encoding, employee.FaceTemplate)
		if !ok {
			continue
		}
		switch {
		case distance < bestDistance:
			best = i
			bestDistance = distance
			tied = false
		case distance == bestDistance:
			tied = true
		}
	}
	if best < 0 || tied || !(bestDistance < threshold) {
		return Candidate{}, false
	}
	return Candidate{Employee: roster[best], Distance: bestDistance}, true
}

// Distance returns the Euclidean distance between two encodings. The second
// result is false when the dimensions differ or a value is not finite.
func Distance(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	distance := math.Sqrt(sum)
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, false
	}
	return distance, true
}
