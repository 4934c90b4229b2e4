package tensor

import (
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// parallelThreshold is the batch size above which BatchMatMul fans out
// across goroutines
const parallelThreshold = 4

func general(rows, cols int, data []float64) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// MatMul performs matrix multiplication: C = A @ B
// A: [M x K], B: [K x N] -> C: [M x N]
func MatMul(a, b *Tensor) *Tensor {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		panic(fmt.Sprintf("MatMul requires 2D tensors, got %dD and %dD", len(a.shape), len(b.shape)))
	}

	M, K := a.shape[0], a.shape[1]
	K2, N := b.shape[0], b.shape[1]
	if K != K2 {
		panic(fmt.Sprintf("MatMul dimension mismatch: [%d x %d] @ [%d x %d]", M, K, K2, N))
	}

	result := NewTensor([]int{M, N})
	gemm(blas.NoTrans, M, K, N, a.data, b.data, result.data)
	return result
}

// gemm writes A(MxK) @ op(B) into c. When tB is blas.Trans, b is laid out
// as [N x K].
func gemm(tB blas.Transpose, M, K, N int, a, b, c []float64) {
	if M == 0 || N == 0 {
		return
	}
	if K == 0 {
		for i := range c[:M*N] {
			c[i] = 0
		}
		return
	}

	bm := general(K, N, b)
	if tB == blas.Trans {
		bm = general(N, K, b)
	}
	blas64.Gemm(blas.NoTrans, tB, 1, general(M, K, a), bm, 0, general(M, N, c))
}

// BatchMatMul performs batched matrix multiplication
// A: [B x M x K], B: [B x K x N] -> C: [B x M x N]
func BatchMatMul(a, b *Tensor) *Tensor {
	return batchMatMul(a, b, false)
}

// BatchMatMulTransB multiplies each A[i] by the transpose of B[i]
// A: [B x M x K], B: [B x N x K] -> C: [B x M x N]
func BatchMatMulTransB(a, b *Tensor) *Tensor {
	return batchMatMul(a, b, true)
}

func batchMatMul(a, b *Tensor, transB bool) *Tensor {
	if len(a.shape) != 3 || len(b.shape) != 3 {
		panic(fmt.Sprintf("BatchMatMul requires 3D tensors, got %dD and %dD", len(a.shape), len(b.shape)))
	}
	if a.shape[0] != b.shape[0] {
		panic(fmt.Sprintf("BatchMatMul batch size mismatch: %d vs %d", a.shape[0], b.shape[0]))
	}

	batchSize := a.shape[0]
	M, K := a.shape[1], a.shape[2]
	K2, N := b.shape[1], b.shape[2]
	tB := blas.NoTrans
	if transB {
		N, K2 = b.shape[1], b.shape[2]
		tB = blas.Trans
	}
	if K != K2 {
		panic(fmt.Sprintf("BatchMatMul dimension mismatch: %v @ %v (transB=%v)", a.shape, b.shape, transB))
	}

	result := NewTensor([]int{batchSize, M, N})

	run := func(i int) {
		gemm(tB, M, K, N,
			a.data[i*M*K:(i+1)*M*K],
			b.data[i*K*N:(i+1)*K*N],
			result.data[i*M*N:(i+1)*M*N])
	}

	if batchSize < parallelThreshold {
		for i := 0; i < batchSize; i++ {
			run(i)
		}
		return result
	}

	// Batch items are independent; each worker writes a disjoint slice
	numWorkers := min(runtime.NumCPU(), batchSize)
	perWorker := (batchSize + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for worker := 0; worker < numWorkers; worker++ {
		start := worker * perWorker
		end := min(start+perWorker, batchSize)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				run(i)
			}
		}(start, end)
	}
	wg.Wait()

	return result
}
