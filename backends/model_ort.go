//go:build ORT || ALL

package backends

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rowcast/rowcast/options"
)

// ORTModel runs the onnx graph through the onnxruntime shared library.
type ORTModel struct {
	Session        *ort.DynamicAdvancedSession
	SessionOptions *ort.SessionOptions
	Options        *options.OrtOptions
	Destroy        func() error
}

func createORTModelBackend(model *Model, opts *options.Options) error {
	sessionOptions, optionsOk := opts.BackendOptions.(*ort.SessionOptions)
	if !optionsOk {
		return errors.New("ORT session options have not been initialised")
	}

	inputs, outputs, metaErr := loadInputOutputMetaORT(model.OnnxBytes)
	if metaErr != nil {
		return metaErr
	}

	session, sessionErr := ort.NewDynamicAdvancedSessionWithONNXData(
		model.OnnxBytes,
		GetNames(inputs),
		GetNames(outputs),
		sessionOptions,
	)
	if sessionErr != nil {
		return sessionErr
	}

	model.ORTModel = &ORTModel{
		Session:        session,
		SessionOptions: sessionOptions,
		Options:        opts.ORTOptions,
		Destroy: func() error {
			return session.Destroy()
		},
	}
	model.InputsMeta = inputs
	model.OutputsMeta = outputs
	return nil
}

func loadInputOutputMetaORT(onnxBytes []byte) ([]InputOutputInfo, []InputOutputInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, nil, err
	}
	return convertORTInputOutputs(inputs), convertORTInputOutputs(outputs), nil
}

func convertORTInputOutputs(infos []ort.InputOutputInfo) []InputOutputInfo {
	converted := make([]InputOutputInfo, len(infos))
	for i, info := range infos {
		converted[i] = InputOutputInfo{
			Name:       info.Name,
			Dimensions: Shape(info.Dimensions),
		}
	}
	return converted
}

func createVectorTensorsORT(batch *PipelineBatch, model *Model, vectors [][]float32) error {
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

	inputTensor, tensorErr := ort.NewTensor(ort.NewShape(int64(rows), int64(cols)), backing)
	if tensorErr != nil {
		return tensorErr
	}
	inputTensors := []ort.Value{inputTensor}
	batch.InputValues = inputTensors
	batch.DestroyInputs = func() error {
		var destroyErr error
		for _, value := range inputTensors {
			destroyErr = errors.Join(destroyErr, value.Destroy())
		}
		return destroyErr
	}
	return nil
}

func runORTSessionOnBatch(batch *PipelineBatch, p *BasePipeline) (err error) {
	if p.Model.ORTModel == nil {
		return fmt.Errorf("model %s has been destroyed", p.Model.ID)
	}
	inputValues, ok := batch.InputValues.([]ort.Value)
	if !ok {
		return fmt.Errorf("invalid input values of type %T for the ORT backend", batch.InputValues)
	}

	outputTensors := make([]ort.Value, len(p.Model.OutputsMeta))
	defer func() {
		for _, output := range outputTensors {
			if output != nil {
				err = errors.Join(err, output.Destroy())
			}
		}
	}()

	for i, meta := range p.Model.OutputsMeta {
		resolvedDims := make([]int64, len(meta.Dimensions))
		for j, dim := range meta.Dimensions {
			if dim > 0 {
				resolvedDims[j] = dim
				continue
			}
			if j != 0 {
				return fmt.Errorf("output %s has a dynamic dimension at axis %d, only the batch axis can be dynamic", meta.Name, j)
			}
			resolvedDims[j] = int64(batch.Size)
		}
		outputTensors[i], err = ort.NewEmptyTensor[float32](ort.NewShape(resolvedDims...))
		if err != nil {
			return err
		}
	}

	if runErr := p.Model.ORTModel.Session.Run(inputValues, outputTensors); runErr != nil {
		return runErr
	}

	converted := make([]any, len(outputTensors))
	for i, output := range outputTensors {
		floatTensor, tensorOk := output.(*ort.Tensor[float32])
		if !tensorOk {
			return fmt.Errorf("output %s holds %T, only matrices of float32 are supported", p.Model.OutputsMeta[i].Name, output)
		}
		rows, cols, shapeErr := ortMatrixShape(floatTensor.GetShape())
		if shapeErr != nil {
			return fmt.Errorf("output %s: %w", p.Model.OutputsMeta[i].Name, shapeErr)
		}
		matrix, reshapeErr := reshapeRows(floatTensor.GetData(), rows, cols)
		if reshapeErr != nil {
			return fmt.Errorf("output %s: %w", p.Model.OutputsMeta[i].Name, reshapeErr)
		}
		converted[i] = matrix
	}
	batch.OutputValues = converted
	return err
}

// ortMatrixShape maps a tensor shape onto rows and columns. Vectors are
// treated as a single column.
func ortMatrixShape(shape ort.Shape) (int, int, error) {
	switch len(shape) {
	case 1:
		return int(shape[0]), 1, nil
	case 2:
		return int(shape[0]), int(shape[1]), nil
	}
	return 0, 0, fmt.Errorf("unsupported output of rank %d", len(shape))
}
