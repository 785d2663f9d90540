package plot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() metrics.Result {
	return metrics.Result{
		Epochs: []int{1, 2, 3, 4},
		Metrics: []metrics.Series{
			{Name: "loss", Values: []float64{0.9, 0.6, 0.4, 0.3}},
			{Name: "acc", Values: []float64{0.2, 0.5, 0.7, 0.8}},
			{Name: "lr", Values: []float64{0.1, 0.01}},
			{Name: "val_loss", Values: []float64{1.0, 0.8, 0.7, 0.65}},
		},
	}
}

func TestTicks(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Ticks([]int{1, 2, 3}))

	epochs := make([]int, 35)
	for i := range epochs {
		epochs[i] = i + 1
	}
	// step = 35/10 = 3
	assert.Equal(t, []int{1, 4, 7, 10, 13, 16, 19, 22, 25, 28, 31, 34}, Ticks(epochs))
	assert.Empty(t, Ticks(nil))
}

func TestCombined_SkipsMismatchedMetrics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Combined(&buf, sampleResult(), Options{Width: 20, Height: 6}))

	out := buf.String()
	assert.Contains(t, out, "Training metrics")
	assert.Contains(t, out, "loss")
	assert.Contains(t, out, "acc")
	assert.Contains(t, out, "val_loss")
	assert.NotContains(t, out, "lr")
	assert.Contains(t, out, "Epoch")
}

func TestCombined_NoData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Combined(&buf, metrics.Result{}, DefaultOptions))
	assert.Contains(t, buf.String(), "no data")
}

func TestGrid_OnePanelPerAlignedMetric(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Grid(&buf, sampleResult(), Options{Width: 16, Height: 4}))

	out := buf.String()
	// Three aligned metrics: a full row of two and a row with one panel.
	assert.Equal(t, 3, strings.Count(out, "╭"))
	assert.NotContains(t, out, "lr")
}

func TestGrid_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Grid(&buf, metrics.Result{Epochs: []int{1}}, DefaultOptions))
	assert.Empty(t, buf.String())
}

func TestChart_TickLabelsFollowEpochs(t *testing.T) {
	c := chart{epochs: []int{5, 10, 15}, opts: Options{Width: 21, Height: 3}}
	want := "5" + strings.Repeat(" ", 9) + "10" + strings.Repeat(" ", 8) + "15"
	assert.Equal(t, want, c.tickLine(21))
}
