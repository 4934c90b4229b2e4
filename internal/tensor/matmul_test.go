package tensor

import (
	"math/rand/v2"
	"testing"
)

func randomTensor(rng *rand.Rand, shape []int) *Tensor {
	t := NewTensor(shape)
	for i := range t.data {
		t.data[i] = rng.Float64()*2 - 1
	}
	return t
}

// matmulNaive is the triple-loop reference the Gemm path is checked against
func matmulNaive(a, b *Tensor) *Tensor {
	M, K := a.shape[0], a.shape[1]
	N := b.shape[1]

	result := NewTensor([]int{M, N})
	for i := 0; i < M; i++ {
		for j := 0; j < N; j++ {
			var sum float64
			for k := 0; k < K; k++ {
				sum += a.data[i*K+k] * b.data[k*N+j]
			}
			result.data[i*N+j] = sum
		}
	}
	return result
}

func transpose(a *Tensor) *Tensor {
	rows, cols := a.shape[0], a.shape[1]
	result := NewTensor([]int{cols, rows})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			result.data[j*rows+i] = a.data[i*cols+j]
		}
	}
	return result
}

func TestMatMulSmall(t *testing.T) {
	a := NewTensorFromData([]float64{1, 2, 3, 4}, []int{2, 2})
	b := NewTensorFromData([]float64{5, 6, 7, 8}, []int{2, 2})

	c := MatMul(a, b)

	// [1*5 + 2*7,  1*6 + 2*8]   =  [19, 22]
	// [3*5 + 4*7,  3*6 + 4*8]      [43, 50]
	expected := []float64{19, 22, 43, 50}

	if c.Dim(0) != 2 || c.Dim(1) != 2 {
		t.Errorf("Expected shape [2, 2], got %v", c.Shape())
	}
	for i, val := range expected {
		if c.Data()[i] != val {
			t.Errorf("MatMul[%d]: expected %f, got %f", i, val, c.Data()[i])
		}
	}
}

func TestMatMulRectangular(t *testing.T) {
	// 3x2 @ 2x4 = 3x4
	a := NewTensorFromData([]float64{
		1, 2,
		3, 4,
		5, 6,
	}, []int{3, 2})

	b := NewTensorFromData([]float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, []int{2, 4})

	c := MatMul(a, b)

	if c.Dim(0) != 3 || c.Dim(1) != 4 {
		t.Errorf("Expected shape [3, 4], got %v", c.Shape())
	}

	// Row 0: [11, 14, 17, 20]
	if c.At(0, 0) != 11 || c.At(0, 1) != 14 || c.At(0, 2) != 17 || c.At(0, 3) != 20 {
		t.Errorf("Row 0 incorrect: got [%f, %f, %f, %f]",
			c.At(0, 0), c.At(0, 1), c.At(0, 2), c.At(0, 3))
	}
}

func TestMatMulMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	sizes := [][3]int{{1, 1, 1}, {3, 5, 7}, {16, 64, 32}, {6, 64, 256}}
	for _, s := range sizes {
		a := randomTensor(rng, []int{s[0], s[1]})
		b := randomTensor(rng, []int{s[1], s[2]})

		got := MatMul(a, b)
		want := matmulNaive(a, b)

		for i := range want.data {
			if !almostEqual(got.data[i], want.data[i], 1e-10) {
				t.Fatalf("size %v: element %d: expected %f, got %f", s, i, want.data[i], got.data[i])
			}
		}
	}
}

func TestMatMulEmptyInner(t *testing.T) {
	a := NewTensor([]int{2, 0})
	b := NewTensor([]int{0, 3})
	c := MatMul(a, b)

	if c.Dim(0) != 2 || c.Dim(1) != 3 {
		t.Fatalf("expected shape [2 3], got %v", c.Shape())
	}
	for _, v := range c.Data() {
		if v != 0 {
			t.Fatalf("expected zeros, got %v", c.Data())
		}
	}
}

func TestMatMulDimensionMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for dimension mismatch")
		}
	}()
	MatMul(NewTensor([]int{2, 3}), NewTensor([]int{2, 3}))
}

func TestBatchMatMul(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	// Below and above the parallel threshold
	for _, batch := range []int{2, 9} {
		a := randomTensor(rng, []int{batch, 4, 5})
		b := randomTensor(rng, []int{batch, 5, 3})

		c := BatchMatMul(a, b)
		if c.Dim(0) != batch || c.Dim(1) != 4 || c.Dim(2) != 3 {
			t.Fatalf("unexpected shape %v", c.Shape())
		}

		for i := 0; i < batch; i++ {
			ai := FromRows(a.Matrix(i))
			bi := FromRows(b.Matrix(i))
			want := matmulNaive(ai, bi)
			got := FromRows(c.Matrix(i))
			for j := range want.data {
				if !almostEqual(got.data[j], want.data[j], 1e-10) {
					t.Fatalf("batch %d element %d: expected %f, got %f", i, j, want.data[j], got.data[j])
				}
			}
		}
	}
}

func TestBatchMatMulTransB(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))

	a := randomTensor(rng, []int{6, 3, 4})
	b := randomTensor(rng, []int{6, 2, 4})

	c := BatchMatMulTransB(a, b)
	if c.Dim(1) != 3 || c.Dim(2) != 2 {
		t.Fatalf("unexpected shape %v", c.Shape())
	}

	for i := 0; i < 6; i++ {
		want := matmulNaive(FromRows(a.Matrix(i)), transpose(FromRows(b.Matrix(i))))
		got := FromRows(c.Matrix(i))
		for j := range want.data {
			if !almostEqual(got.data[j], want.data[j], 1e-10) {
				t.Fatalf("batch %d element %d: expected %f, got %f", i, j, want.data[j], got.data[j])
			}
		}
	}
}

func BenchmarkMatMul64(b *testing.B) {
	rng := rand.New(rand.NewPCG(7, 8))
	x := randomTensor(rng, []int{64, 64})
	w := randomTensor(rng, []int{64, 256})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MatMul(x, w)
	}
}
