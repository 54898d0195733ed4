package backends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	shape := NewShape(-1, 4)
	assert.Equal(t, "[-1 4]", shape.String())
	assert.Equal(t, []int{-1, 4}, shape.ValuesInt())
}

func TestGetNames(t *testing.T) {
	names := GetNames([]InputOutputInfo{
		{Name: "x", Dimensions: NewShape(-1, 4)},
		{Name: "y", Dimensions: NewShape(-1, 1)},
	})
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestBatchDestroyTwice(t *testing.T) {
	batch := NewBatch(1)
	require.NoError(t, batch.Destroy())
	err := batch.Destroy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already been released")
}

func TestReshapeRows(t *testing.T) {
	matrix, err := reshapeRows([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, matrix)

	_, err = reshapeRows([]float32{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	_, err = reshapeRows(nil, 0, 3)
	assert.Error(t, err)
}

func TestReshapeRowsCopies(t *testing.T) {
	flat := []float32{1, 2}
	matrix, err := reshapeRows(flat, 1, 2)
	require.NoError(t, err)
	flat[0] = 99
	assert.Equal(t, float32(1), matrix[0][0])
}

func TestCreateVectorTensorsUnknownRuntime(t *testing.T) {
	err := CreateVectorTensors(NewBatch(1), &Model{}, [][]float32{{1}}, "XLA")
	assert.Error(t, err)
}

func TestRunSessionOnBatchUnknownRuntime(t *testing.T) {
	base := &BasePipeline{Runtime: "XLA", Model: &Model{}}
	assert.Error(t, RunSessionOnBatch(NewBatch(1), base))
}

func TestComputeOnnxStatistics(t *testing.T) {
	stats := PipelineStatistics{}
	stats.ComputeOnnxStatistics(&timings{NumCalls: 2, TotalNS: uint64(4 * time.Millisecond)})
	assert.Equal(t, uint64(2), stats.OnnxExecutionCount)
	assert.Equal(t, 4*time.Millisecond, stats.OnnxTotalTime)
	assert.Equal(t, 2*time.Millisecond, stats.OnnxAvgQueryTime)
}

func TestComputeOnnxStatisticsNoCalls(t *testing.T) {
	stats := PipelineStatistics{}
	stats.ComputeOnnxStatistics(&timings{})
	assert.Equal(t, uint64(0), stats.OnnxExecutionCount)
	assert.Equal(t, time.Duration(0), stats.OnnxAvgQueryTime)
}
