package tensor

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		shape    []int
		expected []float64
	}{
		{"matrix", []float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}, []int{2, 2}, []float64{5, 5, 5, 5}},
		{"negatives", []float64{-1, 0.5, 2}, []float64{1, -0.5, -3}, []int{3}, []float64{0, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewTensorFromData(append([]float64(nil), tt.a...), tt.shape)
			b := NewTensorFromData(append([]float64(nil), tt.b...), tt.shape)
			c := Add(a, b)
			for i, v := range tt.expected {
				if c.Data()[i] != v {
					t.Errorf("[%d]: expected %f, got %f", i, v, c.Data()[i])
				}
			}
			// Inputs are never modified
			for i, v := range tt.a {
				if a.Data()[i] != v {
					t.Fatal("Add must not mutate its input")
				}
			}
		})
	}
}

func TestAddShapeMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on shape mismatch")
		}
	}()
	Add(NewTensor([]int{2, 2}), NewTensor([]int{4}))
}

func TestAddRowVector(t *testing.T) {
	a := NewTensorFromData([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	out := AddRowVector(a, []float64{10, 20, 30})

	expected := []float64{11, 22, 33, 14, 25, 36}
	for i, v := range expected {
		if out.Data()[i] != v {
			t.Errorf("[%d]: expected %f, got %f", i, v, out.Data()[i])
		}
	}
}

func TestReductions(t *testing.T) {
	a := NewTensorFromData([]float64{-1, 4, 2, 3}, []int{4})

	if s := Sum(a); s != 8 {
		t.Errorf("Sum: expected 8, got %f", s)
	}
	if m := Mean(a); m != 2 {
		t.Errorf("Mean: expected 2, got %f", m)
	}
	if m := Max(a); m != 4 {
		t.Errorf("Max: expected 4, got %f", m)
	}
	if m := Min(a); m != -1 {
		t.Errorf("Min: expected -1, got %f", m)
	}
}

func TestSoftmaxLastDim(t *testing.T) {
	a := NewTensorFromData([]float64{
		1, 2, 3,
		1000, 1000, 1000,
		-5, 0, 5,
	}, []int{3, 3})

	s := Softmax(a)

	for r := 0; r < 3; r++ {
		var sum float64
		for _, v := range s.Row(r) {
			if v < 0 || v > 1 {
				t.Errorf("row %d: probability out of range: %f", r, v)
			}
			sum += v
		}
		if !almostEqual(sum, 1, 1e-12) {
			t.Errorf("row %d sums to %f", r, sum)
		}
	}

	// Large equal logits stay finite and uniform
	if !almostEqual(s.At(1, 0), 1.0/3, 1e-12) {
		t.Errorf("expected uniform row, got %v", s.Row(1))
	}

	// Monotonic in the logits
	if !(s.At(0, 0) < s.At(0, 1) && s.At(0, 1) < s.At(0, 2)) {
		t.Errorf("softmax should preserve ordering, got %v", s.Row(0))
	}
}

func TestSoftmaxNegativeInfinityMasks(t *testing.T) {
	row := []float64{0, math.Inf(-1), 0}
	SoftmaxInPlace(row)
	if row[1] != 0 {
		t.Errorf("expected masked entry to be 0, got %f", row[1])
	}
	if !almostEqual(row[0], 0.5, 1e-12) {
		t.Errorf("expected 0.5, got %f", row[0])
	}
}

func TestGELUExact(t *testing.T) {
	tests := []struct {
		x        float64
		expected float64
	}{
		{0, 0},
		{1, 0.8413447460685429},
		{-1, -0.15865525393145707},
		{3, 2.99595030590511},
	}

	for _, tt := range tests {
		got := GELUScalar(tt.x)
		if !almostEqual(got, tt.expected, 1e-9) {
			t.Errorf("GELU(%f): expected %.12f, got %.12f", tt.x, tt.expected, got)
		}
	}
}

func TestGELUTanhIsDistinctApproximation(t *testing.T) {
	a := NewTensorFromData([]float64{-3, -1, 0, 1, 3}, []int{5})

	exact := GELU(a)
	approx := GELUTanh(a)

	var maxDiff float64
	for i := range exact.Data() {
		diff := math.Abs(exact.Data()[i] - approx.Data()[i])
		if diff > 1e-2 {
			t.Errorf("approximation too far from exact at %d: %f", i, diff)
		}
		maxDiff = math.Max(maxDiff, diff)
	}
	if maxDiff == 0 {
		t.Error("tanh variant should differ from the exact form")
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := NewTensorFromData([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3})
	r := Reshape(a, []int{3, 2})

	if r.At(2, 1) != 6 {
		t.Errorf("expected 6, got %f", r.At(2, 1))
	}
	r.Set(42, 0, 0)
	if a.At(0, 0) != 42 {
		t.Error("Reshape should be a view over the same data")
	}
}

func TestReshapeInvalidPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid reshape")
		}
	}()
	Reshape(NewTensor([]int{2, 3}), []int{4, 2})
}
