package inference

import (
	"context"
	"fmt"

	"github.com/xupit3r/tinylm/internal/tensor"
	"github.com/xupit3r/tinylm/internal/transformer"
)

// HeadReport describes one attention head of one layer
type HeadReport struct {
	HeadID      int
	Description string
	Analysis    transformer.AttentionAnalysis
	Heatmap     transformer.Heatmap
	Entropy     float64
}

// AttentionReport describes every head of one layer for a single text
type AttentionReport struct {
	Tokens []string
	Layer  int
	Heads  []HeadReport
}

// Attention runs text through the model and analyzes the heads of layer.
// A negative layer counts from the last block.
func (e *Engine) Attention(ctx context.Context, text string, layer int, opts transformer.ForwardOptions) (*AttentionReport, error) {
	res, err := e.Forward(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	weights := res.Output.AttentionWeights
	if layer < 0 {
		layer += len(weights)
	}
	if layer < 0 || layer >= len(weights) {
		return nil, fmt.Errorf("layer %d out of range [0, %d)", layer, len(weights))
	}

	w := weights[layer]
	report := &AttentionReport{
		Tokens: res.Tokens,
		Layer:  layer,
		Heads:  make([]HeadReport, w.Dim(1)),
	}
	for h := range report.Heads {
		m := w.Matrix(0, h)
		report.Heads[h] = HeadReport{
			HeadID:      h,
			Description: transformer.DescribeHead(m, res.Tokens),
			Analysis:    transformer.AnalyzeAttention(m, res.Tokens),
			Heatmap:     transformer.HeatmapData(m, res.Tokens, h),
			Entropy:     transformer.AttentionEntropy(tensor.FromRows(m)),
		}
	}
	return report, nil
}
