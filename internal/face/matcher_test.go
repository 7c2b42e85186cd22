package face_test

import (
	"math"
	"testing"

	"attendance/internal/attendance"
	"attendance/internal/face"
)

func roster() []attendance.Employee {
	return []attendance.Employee{
		{ID: 1, DisplayName: "Ada", FaceTemplate: attendance.Template{0, 0, 0}},
		{ID: 2, DisplayName: "Grace", FaceTemplate: attendance.Template{1, 0, 0}},
		{ID: 3, DisplayName: "Linus"},
		{ID: 4, DisplayName: "Short", FaceTemplate: attendance.Template{0.1, 0.1}},
	}
}

func TestMatchAcceptsNearestBelowThreshold(t *testing.T) {
	m := face.NewMatcher(0)
	got, ok := m.Match([]float64{0.1, 0, 0}, roster())
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Employee.ID != 1 {
		t.Fatalf("expected employee 1, got %d", got.Employee.ID)
	}
	if math.Abs(got.Distance-0.1) > 1e-9 {
		t.Fatalf("expected distance 0.1, got %v", got.Distance)
	}
}

func TestMatchRejectsAtOrAboveThreshold(t *testing.T) {
	m := face.NewMatcher(face.DefaultThreshold)
	tests := []struct {
		name     string
		encoding []float64
	}{
		{"0.65 away", []float64{0, 0.65, 0}},
		{"1.0 away", []float64{1, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			only := []attendance.Employee{{ID: 7, FaceTemplate: attendance.Template{0, 0, 0}}}
			if got, ok := m.Match(tc.encoding, only); ok {
				t.Fatalf("expected no match, got %+v", got)
			}
		})
	}
}

func TestMatchThresholdIsExclusive(t *testing.T) {
	m := face.NewMatcher(5)
	only := []attendance.Employee{{ID: 7, FaceTemplate: attendance.Template{0, 0, 0}}}
	if got, ok := m.Match([]float64{3, 4, 0}, only); ok {
		t.Fatalf("expected distance equal to threshold to be rejected, got %+v", got)
	}
	if _, ok := m.Match([]float64{3, 3.9, 0}, only); !ok {
		t.Fatal("expected distance just below threshold to be accepted")
	}
}

func TestMatchRejectsTies(t *testing.T) {
	m := face.NewMatcher(face.DefaultThreshold)
	twins := []attendance.Employee{
		{ID: 1, FaceTemplate: attendance.Template{0, 0, 0}},
		{ID: 2, FaceTemplate: attendance.Template{0, 0, 0}},
	}
	if got, ok := m.Match([]float64{0.1, 0, 0}, twins); ok {
		t.Fatalf("expected tie to be rejected, got %+v", got)
	}
}

func TestMatchSkipsMissingAndMismatchedTemplates(t *testing.T) {
	m := face.NewMatcher(face.DefaultThreshold)
	// Employee 4 has a 2-d template that would otherwise be a perfect match.
	if _, ok := m.Match([]float64{0.1, 0.1}, roster()); ok {
		t.Fatal("expected no match for 2-d encoding against 3-d roster")
	}
	if _, ok := m.Match(nil, roster()); ok {
		t.Fatal("expected no match for empty encoding")
	}
	if _, ok := m.Match([]float64{0, 0, 0}, nil); ok {
		t.Fatal("expected no match for empty roster")
	}
}

func TestMatchNeverAcceptsNonMinimalOrDistantCandidate(t *testing.T) {
	m := face.NewMatcher(face.DefaultThreshold)
	people := roster()
	for step := 0; step <= 20; step++ {
		x := float64(step) * 0.05
		encoding := []float64{x, 0, 0}
		got, ok := m.Match(encoding, people)
		if !ok {
			continue
		}
		if got.Distance >= face.DefaultThreshold {
			t.Fatalf("x=%v: accepted distance %v", x, got.Distance)
		}
		for _, other := range people {
			if other.ID == got.Employee.ID {
				continue
			}
			d, comparable := face.Distance(encoding, other.FaceTemplate)
			if comparable && d <= got.Distance {
				t.Fatalf("x=%v: accepted %d at %v but %d is at %v", x, got.Employee.ID, got.Distance, other.ID, d)
			}
		}
	}
}

func TestDistance(t *testing.T) {
	d, ok := face.Distance([]float64{0, 0}, []float64{3, 4})
	if !ok || d != 5 {
		t.Fatalf("expected 5, got %v (%v)", d, ok)
	}
	if _, ok := face.Distance([]float64{1}, []float64{1, 2}); ok {
		t.Fatal("expected dimension mismatch to be rejected")
	}
	if _, ok := face.Distance([]float64{math.Inf(1)}, []float64{0}); ok {
		t.Fatal("expected infinite distance to be rejected")
	}
}
