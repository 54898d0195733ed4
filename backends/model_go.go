package backends

import (
	"errors"
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"

	"github.com/rowcast/rowcast/options"
)

// Graph is the executable surface of a loaded model. It is satisfied by
// *gonnx.Model and by the stub graphs used in tests.
type Graph interface {
	Run(inputs gonnx.Tensors) (gonnx.Tensors, error)
}

// GoModel runs the onnx graph with the pure Go onnx interpreter. No native
// library is required.
type GoModel struct {
	Graph   Graph
	Destroy func() error
}

func createGoModelBackend(model *Model, _ *options.Options) error {
	gonnxModel, err := gonnx.NewModelFromBytes(model.OnnxBytes)
	if err != nil {
		return err
	}
	model.InputsMeta, model.OutputsMeta = loadInputOutputMetaGo(gonnxModel)
	model.GoModel = &GoModel{
		Graph: gonnxModel,
		Destroy: func() error {
			return nil
		},
	}
	return nil
}

func loadInputOutputMetaGo(model *gonnx.Model) ([]InputOutputInfo, []InputOutputInfo) {
	var inputs, outputs []InputOutputInfo

	inputShapes := model.InputShapes()
	for _, name := range model.InputNames() {
		shape := inputShapes[name]
		dimensions := make(Shape, len(shape))
		for i, d := range shape {
			dimensions[i] = d.Size
		}
		inputs = append(inputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
		})
	}
	outputShapes := model.OutputShapes()
	for _, name := range model.OutputNames() {
		shape := outputShapes[name]
		dimensions := make(Shape, len(shape))
		for i, d := range shape {
			dimensions[i] = d.Size
		}
		outputs = append(outputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
		})
	}
	return inputs, outputs
}

func createVectorTensorsGo(batch *PipelineBatch, model *Model, vectors [][]float32) error {
	if len(model.InputsMeta) == 0 {
		return errors.New("model declares no inputs")
	}
	rows := len(vectors)
	if rows == 0 {
		return errors.New("no feature vectors to load")
	}
	cols := len(vectors[0])
	backing := make([]float32, rows*cols)
	for i, vector := range vectors {
		if len(vector) != cols {
			return fmt.Errorf("feature vector %d has %d values, want %d", i, len(vector), cols)
		}
		copy(backing[i*cols:], vector)
	}
	batch.InputValues = gonnx.Tensors{
		model.InputsMeta[0].Name: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(rows, cols),
			tensor.WithBacking(backing),
		),
	}
	return nil
}

func runGoSessionOnBatch(batch *PipelineBatch, p *BasePipeline) error {
	if p.Model.GoModel == nil {
		return fmt.Errorf("model %s has been destroyed", p.Model.ID)
	}
	inputs, ok := batch.InputValues.(gonnx.Tensors)
	if !ok {
		return fmt.Errorf("invalid input values of type %T for the Go backend", batch.InputValues)
	}
	outputs, err := p.Model.GoModel.Graph.Run(inputs)
	if err != nil {
		return err
	}
	converted := make([]any, len(p.Model.OutputsMeta))
	for i, meta := range p.Model.OutputsMeta {
		out, found := outputs[meta.Name]
		if !found {
			return fmt.Errorf("output %s missing from the run result", meta.Name)
		}
		data, dataOk := out.Data().([]float32)
		if !dataOk {
			return fmt.Errorf("output %s holds %T, only matrices of float32 are supported", meta.Name, out.Data())
		}
		rows, cols, shapeErr := outputMatrixShape(out.Shape())
		if shapeErr != nil {
			return fmt.Errorf("output %s: %w", meta.Name, shapeErr)
		}
		matrix, reshapeErr := reshapeRows(data, rows, cols)
		if reshapeErr != nil {
			return fmt.Errorf("output %s: %w", meta.Name, reshapeErr)
		}
		converted[i] = matrix
	}
	batch.OutputValues = converted
	return nil
}

// outputMatrixShape maps a tensor shape onto rows and columns. Vectors are
// treated as a single column.
func outputMatrixShape(shape tensor.Shape) (int, int, error) {
	switch len(shape) {
	case 1:
		return shape[0], 1, nil
	case 2:
		return shape[0], shape[1], nil
	}
	return 0, 0, fmt.Errorf("unsupported output of rank %d", len(shape))
}
