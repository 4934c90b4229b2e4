package transformer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/xupit3r/tinylm/internal/tensor"
)

const (
	// uniformStdThreshold separates uniform from focused attention
	uniformStdThreshold = 0.1

	// headPatternThreshold is the mean weight above which a head is
	// described by a single dominant pattern
	headPatternThreshold = 0.3

	// entropyEps keeps log finite for zero weights
	entropyEps = 1e-10
)

// Distribution labels for AttentionAnalysis
const (
	DistributionUniform = "uniform"
	DistributionFocused = "focused"
)

// AttentionAnalysis summarizes one [q_len][k_len] attention matrix
type AttentionAnalysis struct {
	SelfAttentionRate     float64 // mean of the diagonal
	ForwardAttentionRate  float64 // strictly-upper triangle sum / (q_len*k_len)
	BackwardAttentionRate float64 // strictly-lower triangle sum / (q_len*k_len)

	MostAttended       int // argmax of column means
	MostAttendedToken  string
	MostAttending      int // argmax of row means
	MostAttendingToken string

	ColumnMeanStd float64
	Distribution  string // DistributionUniform or DistributionFocused
}

// AnalyzeAttention derives pattern statistics from an attention matrix.
// tokens labels the positions; missing labels read "unknown".
func AnalyzeAttention(weights [][]float64, tokens []string) AttentionAnalysis {
	rows := len(weights)
	if rows == 0 || len(weights[0]) == 0 {
		return AttentionAnalysis{Distribution: DistributionUniform}
	}
	cols := len(weights[0])

	var diag, upper, lower float64
	diagN := 0
	for i, row := range weights {
		for j, w := range row {
			switch {
			case i == j:
				diag += w
				diagN++
			case j > i:
				upper += w
			default:
				lower += w
			}
		}
	}
	total := float64(rows * cols)

	colMeans := columnMeans(weights)
	rowMeans := make([]float64, rows)
	for i, row := range weights {
		rowMeans[i] = floats.Sum(row) / float64(cols)
	}

	attended := floats.MaxIdx(colMeans)
	attending := floats.MaxIdx(rowMeans)
	std := stat.PopStdDev(colMeans, nil)

	a := AttentionAnalysis{
		ForwardAttentionRate:  upper / total,
		BackwardAttentionRate: lower / total,
		MostAttended:          attended,
		MostAttendedToken:     tokenAt(tokens, attended),
		MostAttending:         attending,
		MostAttendingToken:    tokenAt(tokens, attending),
		ColumnMeanStd:         std,
		Distribution:          DistributionFocused,
	}
	if diagN > 0 {
		a.SelfAttentionRate = diag / float64(diagN)
	}
	if std < uniformStdThreshold {
		a.Distribution = DistributionUniform
	}
	return a
}

// DescribeHead names the dominant pattern of one head's attention matrix
func DescribeHead(weights [][]float64, tokens []string) string {
	if len(weights) == 0 || len(weights[0]) == 0 {
		return "Empty attention"
	}
	cols := len(weights[0])

	var diag, first, last float64
	diagN := 0
	for i, row := range weights {
		if i < cols {
			diag += row[i]
			diagN++
		}
		first += row[0]
		last += row[cols-1]
	}
	n := float64(len(weights))

	switch {
	case diag/float64(diagN) > headPatternThreshold:
		return "Self-attention (focuses on same position)"
	case first/n > headPatternThreshold:
		return "Beginning attention (focuses on start tokens)"
	case last/n > headPatternThreshold:
		return "End attention (focuses on end tokens)"
	default:
		focus := floats.MaxIdx(columnMeans(weights))
		return fmt.Sprintf("Distributed attention (focuses on '%s')", tokenAt(tokens, focus))
	}
}

// Heatmap carries one head's matrix with its value range
type Heatmap struct {
	HeadID  int
	Tokens  []string
	Weights [][]float64
	Min     float64
	Max     float64
	Rows    int
	Cols    int
}

// HeatmapData packages an attention matrix for plotting
func HeatmapData(weights [][]float64, tokens []string, headID int) Heatmap {
	h := Heatmap{HeadID: headID, Tokens: tokens, Weights: weights, Rows: len(weights)}
	if len(weights) == 0 || len(weights[0]) == 0 {
		return h
	}
	h.Cols = len(weights[0])
	m := tensor.FromRows(weights)
	h.Min, h.Max = tensor.Min(m), tensor.Max(m)
	return h
}

// AttentionEntropy returns the mean entropy -Σ p·log(p) of every
// attention row in weights (any shape, rows along the last dimension)
func AttentionEntropy(weights *tensor.Tensor) float64 {
	n := weights.Dim(-1)
	data := weights.Data()
	if n == 0 || len(data) == 0 {
		return 0
	}

	var total float64
	rows := 0
	for off := 0; off < len(data); off += n {
		var h float64
		for _, p := range data[off : off+n] {
			p += entropyEps
			h -= p * math.Log(p)
		}
		total += h
		rows++
	}
	return total / float64(rows)
}

func columnMeans(weights [][]float64) []float64 {
	cols := len(weights[0])
	means := make([]float64, cols)
	for _, row := range weights {
		floats.Add(means, row)
	}
	floats.Scale(1/float64(len(weights)), means)
	return means
}

func tokenAt(tokens []string, i int) string {
	if i >= 0 && i < len(tokens) {
		return tokens[i]
	}
	return "unknown"
}
