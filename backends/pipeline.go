package backends

import (
	"errors"
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/util/safeconv"
)

// BasePipeline can be embedded by a pipeline.
type BasePipeline struct {
	Model           *Model
	PipelineTimings *timings
	PipelineName    string
	Runtime         string
}

type InputOutputInfo struct {
	// The name of the input or output
	Name string
	// The input or output's dimensions, if it's a tensor. This should be
	// ignored for non-tensor types.
	Dimensions Shape
}

type Shape []int64

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

func (s Shape) ValuesInt() []int {
	output := make([]int, len(s))
	for i, v := range s {
		output[i] = safeconv.Int64ToInt(v)
	}
	return output
}

// NewShape Returns a Shape, with the given dimensions.
func NewShape(dimensions ...int64) Shape {
	return dimensions
}

type OutputInfo struct {
	Name       string
	Dimensions []int64
}

type PipelineMetadata struct {
	OutputsInfo []OutputInfo
}

type PipelineBatchOutput interface {
	GetOutput() []any
}

// Pipeline is the interface that any pipeline must implement.
type Pipeline interface {
	GetStatistics() PipelineStatistics         // Get the pipeline running statistics
	Validate() error                           // Validate the pipeline for correctness
	GetMetadata() PipelineMetadata             // Return metadata information for the pipeline
	GetModel() *Model                          // Return the model used by the pipeline
	Run([]string) (PipelineBatchOutput, error) // Run the pipeline on an input
}

type PipelineStatistics struct {
	OnnxTotalTime      time.Duration
	OnnxExecutionCount uint64
	OnnxAvgQueryTime   time.Duration
}

func (p *PipelineStatistics) ComputeOnnxStatistics(timings *timings) {
	p.OnnxTotalTime = safeconv.U64ToDuration(timings.TotalNS)
	p.OnnxExecutionCount = timings.NumCalls
	p.OnnxAvgQueryTime = time.Duration(float64(timings.TotalNS) /
		math.Max(1, float64(timings.NumCalls)))
}

func (p *PipelineStatistics) Print() {
	jsonData, err := jsoniter.MarshalIndent(p, "", "  ")
	if err != nil {
		fmt.Println(err)
	}
	fmt.Println(string(jsonData))
}

// PipelineOption is an option for a pipeline type.
type PipelineOption[T Pipeline] func(eo T) error

// PipelineConfig is a configuration for a pipeline type that can be used
// to create that pipeline.
type PipelineConfig[T Pipeline] struct {
	ModelPath    string
	Name         string
	OnnxFilename string
	Options      []PipelineOption[T]
}

type timings struct {
	NumCalls uint64
	TotalNS  uint64
}

// PipelineBatch represents a batch of inputs that runs through the pipeline.
type PipelineBatch struct {
	InputValues   any
	DestroyInputs func() error
	OutputValues  []any
	Size          int
	destroyed     bool
}

// Destroy releases the native resources held by the batch. Calling it a
// second time is an error.
func (b *PipelineBatch) Destroy() error {
	if b.destroyed {
		return errors.New("batch resources have already been released")
	}
	b.destroyed = true
	return b.DestroyInputs()
}

// NewBatch initializes a new batch for inference.
func NewBatch(size int) *PipelineBatch {
	return &PipelineBatch{
		DestroyInputs: func() error {
			return nil
		},
		Size: size,
	}
}

func GetNames(info []InputOutputInfo) []string {
	names := make([]string, 0, len(info))
	for _, v := range info {
		names = append(names, v.Name)
	}
	return names
}

// CreateVectorTensors loads a batch of numeric feature vectors into the input
// tensor expected by the model. Every vector must have the same length.
func CreateVectorTensors(batch *PipelineBatch, model *Model, vectors [][]float32, runtime string) error {
	switch runtime {
	case "ORT":
		return createVectorTensorsORT(batch, model, vectors)
	case "GO":
		return createVectorTensorsGo(batch, model, vectors)
	}
	return fmt.Errorf("runtime %s is not supported", runtime)
}

func RunSessionOnBatch(batch *PipelineBatch, p *BasePipeline) error {
	switch p.Runtime {
	case "ORT":
		return runORTSessionOnBatch(batch, p)
	case "GO":
		return runGoSessionOnBatch(batch, p)
	}
	return fmt.Errorf("runtime %s is not supported", p.Runtime)
}

func NewBasePipeline[T Pipeline](config PipelineConfig[T], s *options.Options, model *Model) (*BasePipeline, error) {
	pipeline := &BasePipeline{}
	pipeline.Runtime = s.Backend
	pipeline.PipelineName = config.Name
	pipeline.Model = model
	pipeline.PipelineTimings = &timings{}
	return pipeline, nil
}

func CreateModelBackend(model *Model, s *options.Options) error {
	var err error
	switch s.Backend {
	case "ORT":
		err = createORTModelBackend(model, s)
	case "GO":
		err = createGoModelBackend(model, s)
	default:
		err = fmt.Errorf("backend %s is not supported", s.Backend)
	}
	return err
}

// reshapeRows copies a flat tensor buffer into a [rows][cols] matrix.
func reshapeRows(flat []float32, rows, cols int) ([][]float32, error) {
	if rows < 1 || cols < 1 || len(flat) != rows*cols {
		return nil, fmt.Errorf("cannot reshape %d values into a %dx%d matrix", len(flat), rows, cols)
	}
	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, cols)
		copy(row, flat[i*cols:(i+1)*cols])
		out[i] = row
	}
	return out, nil
}
