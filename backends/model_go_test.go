package backends

import (
	"errors"
	"testing"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/rowcast/rowcast/options"
)

type stubGraph struct {
	outputs   gonnx.Tensors
	err       error
	gotInputs gonnx.Tensors
}

func (s *stubGraph) Run(inputs gonnx.Tensors) (gonnx.Tensors, error) {
	s.gotInputs = inputs
	if s.err != nil {
		return nil, s.err
	}
	return s.outputs, nil
}

func float32Tensor(shape []int, backing []float32) tensor.Tensor {
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func stubModel(graph Graph) *Model {
	return &Model{
		ID:          "stub",
		GoModel:     &GoModel{Graph: graph, Destroy: func() error { return nil }},
		InputsMeta:  []InputOutputInfo{{Name: "x", Dimensions: NewShape(-1, 2)}},
		OutputsMeta: []InputOutputInfo{{Name: "y", Dimensions: NewShape(-1, 1)}},
	}
}

func TestCreateVectorTensorsGo(t *testing.T) {
	model := stubModel(&stubGraph{})
	batch := NewBatch(2)
	require.NoError(t, createVectorTensorsGo(batch, model, [][]float32{{1, 2}, {3, 4}}))

	inputs, ok := batch.InputValues.(gonnx.Tensors)
	require.True(t, ok)
	input, found := inputs["x"]
	require.True(t, found)
	assert.Equal(t, []int{2, 2}, []int(input.Shape()))
	assert.Equal(t, []float32{1, 2, 3, 4}, input.Data().([]float32))
}

func TestCreateVectorTensorsGoRaggedVectors(t *testing.T) {
	model := stubModel(&stubGraph{})
	err := createVectorTensorsGo(NewBatch(2), model, [][]float32{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestRunGoSessionOnBatch(t *testing.T) {
	graph := &stubGraph{
		outputs: gonnx.Tensors{"y": float32Tensor([]int{1, 1}, []float32{3})},
	}
	model := stubModel(graph)
	base := &BasePipeline{Model: model, Runtime: "GO", PipelineTimings: &timings{}}

	batch := NewBatch(1)
	require.NoError(t, CreateVectorTensors(batch, model, [][]float32{{1, 2}}, "GO"))
	require.NoError(t, RunSessionOnBatch(batch, base))

	require.Len(t, batch.OutputValues, 1)
	matrix, ok := batch.OutputValues[0].([][]float32)
	require.True(t, ok)
	assert.Equal(t, [][]float32{{3}}, matrix)
	assert.NotNil(t, graph.gotInputs)
	require.NoError(t, batch.Destroy())
}

func TestRunGoSessionOnBatchMissingOutput(t *testing.T) {
	graph := &stubGraph{outputs: gonnx.Tensors{}}
	model := stubModel(graph)
	base := &BasePipeline{Model: model, Runtime: "GO", PipelineTimings: &timings{}}

	batch := NewBatch(1)
	require.NoError(t, createVectorTensorsGo(batch, model, [][]float32{{1, 2}}))
	err := runGoSessionOnBatch(batch, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRunGoSessionOnBatchGraphError(t *testing.T) {
	graph := &stubGraph{err: errors.New("graph exploded")}
	model := stubModel(graph)
	base := &BasePipeline{Model: model, Runtime: "GO", PipelineTimings: &timings{}}

	batch := NewBatch(1)
	require.NoError(t, createVectorTensorsGo(batch, model, [][]float32{{1, 2}}))
	err := runGoSessionOnBatch(batch, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph exploded")
}

func TestRunGoSessionOnBatchWrongOutputType(t *testing.T) {
	graph := &stubGraph{
		outputs: gonnx.Tensors{"y": tensor.New(tensor.Of(tensor.Int64), tensor.WithShape(1, 1), tensor.WithBacking([]int64{1}))},
	}
	model := stubModel(graph)
	base := &BasePipeline{Model: model, Runtime: "GO", PipelineTimings: &timings{}}

	batch := NewBatch(1)
	require.NoError(t, createVectorTensorsGo(batch, model, [][]float32{{1, 2}}))
	err := runGoSessionOnBatch(batch, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float32")
}

func TestRunGoSessionOnBatchDestroyedModel(t *testing.T) {
	model := stubModel(&stubGraph{})
	model.GoModel = nil
	base := &BasePipeline{Model: model, Runtime: "GO", PipelineTimings: &timings{}}

	err := runGoSessionOnBatch(NewBatch(1), base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destroyed")
}

func TestOutputMatrixShape(t *testing.T) {
	rows, cols, err := outputMatrixShape(tensor.Shape{3, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)

	rows, cols, err = outputMatrixShape(tensor.Shape{5})
	require.NoError(t, err)
	assert.Equal(t, 5, rows)
	assert.Equal(t, 1, cols)

	_, _, err = outputMatrixShape(tensor.Shape{1, 2, 3})
	assert.Error(t, err)
}

func TestLoadModelFromBytesRejectsJunk(t *testing.T) {
	opts := options.Defaults()
	opts.Backend = "GO"

	_, err := LoadModelFromBytes([]byte("not an onnx graph"), "junk", opts)
	require.Error(t, err)
	var loadErr *ModelLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestModelDestroyTwice(t *testing.T) {
	model := stubModel(&stubGraph{})
	attachModelDestroy(model, "GO")

	require.NoError(t, model.Destroy())
	assert.Nil(t, model.GoModel)
	err := model.Destroy()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already been destroyed")
}
